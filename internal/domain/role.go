package domain

// Role 来自统一认证服务签发的令牌
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)
