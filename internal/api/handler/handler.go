package handler

import "bugbot/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth   *AuthHandler
	Team   *TeamHandler
	Oncall *OncallHandler
	Export *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:   NewAuthHandler(svc.Auth),
		Team:   NewTeamHandler(svc.Team),
		Oncall: NewOncallHandler(svc.Oncall),
		Export: NewExportHandler(svc.Export),
	}
}
