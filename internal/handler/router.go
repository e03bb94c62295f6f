package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/middleware"
	"github.com/noah-isme/tuition-center-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	Sessions      *SessionHandler
	Notifications *NotificationHandler
	Enrollment    *EnrollmentHandler
	Payments      *PaymentHandler
	Materials     *MaterialHandler
	Reports       *ReportHandler
	Marks         *MarkHandler
	Chats         *ChatHandler
	Admin         *AdminHandler
}

// RegisterRoutes mounts the API on group. Every route except login,
// registration and signed downloads requires a bearer token.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, logger *zap.Logger) {
	auth := group.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/register", h.Auth.Register)

	group.GET("/export/:token", h.Reports.Download)

	secured := group.Group("")
	secured.Use(middleware.JWT(tokens))

	teacher := middleware.RequireRoles(models.RoleTeacher)
	admin := middleware.RequireRoles(models.RoleAdmin)
	parent := middleware.RequireRoles(models.RoleParent)
	guardian := middleware.RequireRoles(models.RoleParent, models.RoleAdmin)

	sessions := secured.Group("/sessions", teacher)
	sessions.POST("", middleware.Audit(logger, "session.start"), h.Sessions.Start)
	sessions.GET("/current", h.Sessions.Current)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.POST("/:id/present", h.Sessions.MarkPresent)
	sessions.POST("/:id/absent", h.Sessions.MarkAbsent)
	sessions.POST("/:id/scan", h.Sessions.Scan)
	sessions.POST("/:id/scan-image", h.Sessions.ScanImage)
	sessions.POST("/:id/camera", middleware.Audit(logger, "session.camera_start"), h.Sessions.StartCamera)
	sessions.DELETE("/:id/camera", middleware.Audit(logger, "session.camera_stop"), h.Sessions.StopCamera)
	sessions.POST("/:id/end", middleware.Audit(logger, "session.end"), h.Sessions.End)
	sessions.GET("/:id/events", h.Sessions.Events)

	authors := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	secured.POST("/announcements", authors, middleware.Audit(logger, "announcement.broadcast"), h.Notifications.Broadcast)
	secured.GET("/announcements/sent", authors, h.Notifications.Sent)
	secured.GET("/notifications", h.Notifications.List)

	secured.POST("/enrollments", parent, middleware.Audit(logger, "student.enroll"), h.Enrollment.Enroll)
	secured.GET("/students", parent, h.Enrollment.Children)
	secured.POST("/students/:id/subjects", parent, middleware.Audit(logger, "student.add_subjects"), h.Enrollment.AddSubjects)
	secured.GET("/students/:id/qr", guardian, h.Enrollment.QRCode)
	secured.GET("/students/:id/attendance", guardian, h.Reports.StudentAttendance)
	secured.GET("/students/:id/report-card", guardian, h.Marks.ReportCard)

	secured.POST("/payments/monthly", parent, middleware.Audit(logger, "payment.submit_monthly"), h.Enrollment.SubmitMonthly)
	secured.GET("/payments/mine", parent, h.Enrollment.Payments)

	payments := secured.Group("/payments", admin)
	payments.GET("", h.Payments.List)
	payments.POST("/:id/approve", middleware.Audit(logger, "payment.approve"), h.Payments.Approve)
	payments.POST("/:id/reject", middleware.Audit(logger, "payment.reject"), h.Payments.Reject)

	secured.POST("/materials", teacher, middleware.Audit(logger, "material.upload"), h.Materials.Upload)
	secured.GET("/materials", h.Materials.List)

	secured.POST("/marks", teacher, middleware.Audit(logger, "marks.upload"), h.Marks.Upload)
	secured.GET("/marks", teacher, h.Marks.List)

	chatters := middleware.RequireRoles(models.RoleTeacher, models.RoleParent)
	secured.POST("/chats", chatters, h.Chats.Send)
	secured.GET("/chats", chatters, h.Chats.Threads)
	secured.GET("/chats/:id", chatters, h.Chats.Conversation)

	staff := secured.Group("/admin", admin)
	staff.GET("/teachers", h.Admin.ListTeachers)
	staff.POST("/teachers", middleware.Audit(logger, "teacher.create"), h.Admin.CreateTeacher)
	staff.PUT("/teachers/:id", middleware.Audit(logger, "teacher.update"), h.Admin.UpdateTeacher)
	staff.DELETE("/teachers/:id", middleware.Audit(logger, "teacher.delete"), h.Admin.DeleteTeacher)
	staff.GET("/students", h.Admin.ListStudents)
	staff.DELETE("/students/:id", middleware.Audit(logger, "student.delete"), h.Admin.DeleteStudent)

	secured.GET("/attendance/overview", teacher, h.Reports.Overview)
	reports := secured.Group("/reports", teacher)
	reports.POST("/attendance", middleware.Audit(logger, "report.export"), h.Reports.CreateExport)
	reports.GET("/:id", h.Reports.ExportStatus)
}

// RegisterProbes mounts health, readiness and metrics at the root.
func RegisterProbes(r gin.IRoutes, h *MetricsHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
}
