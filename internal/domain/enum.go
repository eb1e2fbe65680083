package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidEnum = errors.New("非法的枚举值")

type enum interface {
	~string
	IsValid() bool
}

func parseEnum[T enum](kind string, s string) (T, error) {
	v := T(s)
	if !v.IsValid() {
		var zero T
		return zero, fmt.Errorf("%w: %s 不能为 %q", ErrInvalidEnum, kind, s)
	}
	return v, nil
}

// 在反序列化时就拒绝非法的取值，而不是等到数据库约束报错
func unmarshalEnum[T enum](data []byte, dst *T, kind string) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v, err := parseEnum[T](kind, raw)
	if err != nil {
		return err
	}

	*dst = v
	return nil
}
