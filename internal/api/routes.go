package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/api/middleware"
)

// Dependencies 汇总路由需要的处理器与鉴权组件。
type Dependencies struct {
	Tokens         middleware.TokenValidator
	InternalSecret string
	MaxUploadMB    int

	Auth       *AuthHandler
	Import     *ImportHandler
	Candidates *CandidateHandler
	Rankings   *RankingHandler
	Notify     *NotifyHandler
	Reports    *ReportHandler
	Ws         *WsHandler
}

// limitBody 限制上传请求体大小（多留 1MB 给其它表单字段）。
func limitBody(maxMB int) gin.HandlerFunc {
	if maxMB <= 0 {
		maxMB = 10
	}
	limit := int64(maxMB+1) << 20
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RegisterRoutes 注册 /api 下的业务路由。
func RegisterRoutes(api *gin.RouterGroup, deps Dependencies) {
	authn := middleware.AuthMiddleware(deps.Tokens)
	upload := limitBody(deps.MaxUploadMB)

	// 公开接口
	api.POST("/signup", deps.Auth.Signup)
	api.POST("/signin", deps.Auth.Signin)
	api.POST("/refresh", deps.Auth.Refresh)
	api.POST("/logout", deps.Auth.Logout)
	api.POST("/reset-otp", deps.Auth.ResetOTP)
	api.POST("/verify-otp", deps.Auth.VerifyOTP)
	api.POST("/reset-password", deps.Auth.ResetPassword)
	api.POST("/verifyCredentials", deps.Auth.VerifyCredentials)
	api.POST("/submitCandidate", upload, deps.Candidates.Submit)
	api.POST("/submit-domain-assessment", deps.Rankings.Submit)
	if deps.Ws != nil {
		api.GET("/ws", deps.Ws.HandleConnection)
	}

	// 改密接口只要求登录，不要求已完成改密。
	api.POST("/change-password", authn, deps.Auth.ChangePassword)

	org := api.Group("")
	org.Use(authn, middleware.RequirePasswordChangeCompletedMiddleware())
	{
		org.POST("/upload-csv", upload, deps.Import.UploadCSV)
		org.GET("/data", deps.Import.List)
		org.POST("/modify-record", deps.Import.Modify)
		org.POST("/delete-records", deps.Import.Delete)
		org.DELETE("/deleteAll", deps.Import.DeleteAll)
		org.POST("/send-email", deps.Notify.InviteImported)

		org.GET("/candidate-details", deps.Candidates.List)
		org.GET("/candidate-details/:id/resume", deps.Candidates.ResumeURL)
		org.POST("/modify-candidate-details-record", deps.Candidates.Modify)
		org.POST("/delete-records-candidate-details", deps.Candidates.Delete)
		org.DELETE("/deleteAll-candidate-details", deps.Candidates.DeleteAll)
		org.POST("/send-email-candidate-details", deps.Notify.InviteDetails)
		org.GET("/files/*key", deps.Candidates.ServeFile)

		org.GET("/", deps.Rankings.List)
		org.GET("/rankings", deps.Rankings.List)
		org.PUT("/rankings/:id", deps.Rankings.Update)
		org.DELETE("/rankings", deps.Rankings.Delete)
		org.DELETE("/rankings/all", deps.Rankings.DeleteAll)
		org.POST("/rankings/send-emails", deps.Notify.NotifySelected)
		org.POST("/filterCandidates", deps.Rankings.Shortlist)
		org.POST("/sendCandidateEmail", deps.Notify.NotifyCandidate)

		org.GET("/candidate-by-year", deps.Reports.ByYear)
		org.GET("/candidate-by-domain", deps.Reports.ByDomain)
		org.GET("/candidate-by-subdomain", deps.Reports.BySubDomain)
		org.GET("/orgEmailCount", deps.Reports.OrgEmailCounts)
		org.GET("/dashboardData", deps.Reports.Dashboard)
	}
}
