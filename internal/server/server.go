// Package server assembles the fiber application and its routes.
package server

import (
	"strings"

	"snd-backend/internal/admin"
	"snd-backend/internal/advance"
	"snd-backend/internal/apperror"
	"snd-backend/internal/assignment"
	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/chat"
	"snd-backend/internal/config"
	"snd-backend/internal/customer"
	"snd-backend/internal/dashboard"
	"snd-backend/internal/documents"
	"snd-backend/internal/employee"
	"snd-backend/internal/equipment"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/leave"
	"snd-backend/internal/logging"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"
	"snd-backend/internal/payroll"
	"snd-backend/internal/project"
	"snd-backend/internal/rental"
	"snd-backend/internal/storage"
	"snd-backend/internal/timesheet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

type Deps struct {
	Config *config.Config
	Logger *zap.Logger
	Store  storage.ObjectStore
	ERP    *erpnext.Client
}

func corsOrigins(raw string) string {
	origins := strings.Split(raw, ",")
	out := origins[:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return strings.Join(out, ",")
}

func New(d Deps) *fiber.App {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = zap.L()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apperror.ErrorHandler,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))
	api.Post("/webhooks/erpnext/customers", customer.WebhookHandler(cfg, d.ERP))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	registerAdmin(protected)
	registerPeople(protected)
	registerOperations(protected, cfg, d.ERP)
	registerDocuments(protected, cfg, d.Store)

	// Notifications & chat
	notes := protected.Group("/notifications", auth.RequirePermission("manage", "Notification"))
	notes.Get("/", notification.ListNotificationsHandler())
	notes.Post("/read-all", notification.MarkAllReadHandler())
	notes.Post("/:id/read", notification.MarkReadHandler())
	notes.Delete("/:id", notification.DeleteNotificationHandler())

	chats := protected.Group("/chat", auth.RequirePermission("manage", "Chat"))
	chats.Get("/conversations", chat.ListConversationsHandler())
	chats.Post("/conversations", chat.CreateConversationHandler())
	chats.Get("/conversations/:id/messages", chat.ListMessagesHandler())
	chats.Post("/conversations/:id/messages", chat.SendMessageHandler())
	chats.Post("/conversations/:id/read", chat.MarkReadHandler())

	// Dashboard
	protected.Get("/dashboard/stats", auth.RequirePermission("read", "Dashboard"), dashboard.StatsHandler())
	protected.Get("/dashboard/rental-chart", auth.RequirePermission("read", "Dashboard"), dashboard.RentalChartHandler())

	// Audit logs
	protected.Get("/audit-logs", auth.RequirePermission("read", "AuditLog"), audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", auth.RequirePermission("manage", "AuditLog"), audit.UndoAuditLogHandler())

	return app
}

func registerAdmin(r fiber.Router) {
	companies := r.Group("/admin/companies", auth.RequireRole(models.RoleSuperAdmin))
	companies.Post("/", admin.CreateCompanyHandler())
	companies.Get("/", admin.ListCompaniesHandler())
	companies.Get("/:id", admin.GetCompanyHandler())
	companies.Put("/:id", admin.UpdateCompanyHandler())
	companies.Delete("/:id", admin.DeleteCompanyHandler())
	companies.Post("/:id/admins", admin.CreateCompanyAdminHandler())
	companies.Get("/:id/admins", admin.ListCompanyAdminsHandler())

	r.Get("/users", auth.RequirePermission("read", "User"), admin.ListUsersHandler())
	r.Post("/users", auth.RequirePermission("create", "User"), admin.CreateUserHandler())
	r.Put("/users/:id", auth.RequirePermission("update", "User"), admin.UpdateUserHandler())
	r.Put("/users/:id/role", auth.RequirePermission("update", "User"), admin.UpdateUserRoleHandler())
	r.Get("/users/:id/permissions", auth.RequirePermission("read", "User"), admin.UserPermissionsHandler())
	r.Put("/users/:id/permissions", auth.RequirePermission("update", "User"), admin.UpdateUserPermissionsHandler())

	// Roles and permissions are global, so writes stay with the super admin.
	r.Get("/roles", auth.RequirePermission("read", "Role"), admin.ListRolesHandler())
	r.Post("/roles", auth.RequireRole(models.RoleSuperAdmin), admin.CreateRoleHandler())
	r.Put("/roles/:id/permissions", auth.RequireRole(models.RoleSuperAdmin), admin.UpdateRolePermissionsHandler())

	r.Get("/permissions", auth.RequirePermission("read", "Permission"), admin.ListPermissionsHandler())
	r.Get("/permissions/:id", auth.RequirePermission("read", "Permission"), admin.GetPermissionHandler())
	r.Post("/permissions", auth.RequireRole(models.RoleSuperAdmin), admin.CreatePermissionHandler())
	r.Put("/permissions/:id", auth.RequireRole(models.RoleSuperAdmin), admin.UpdatePermissionHandler())
	r.Delete("/permissions/:id", auth.RequireRole(models.RoleSuperAdmin), admin.DeletePermissionHandler())
}

func registerPeople(r fiber.Router) {
	// Departments
	r.Get("/departments", auth.RequirePermission("read", "Department"), employee.ListDepartmentsHandler())
	r.Post("/departments", auth.RequirePermission("create", "Department"), employee.CreateDepartmentHandler())
	r.Put("/departments/:id", auth.RequirePermission("update", "Department"), employee.UpdateDepartmentHandler())
	r.Delete("/departments/:id", auth.RequirePermission("delete", "Department"), employee.DeleteDepartmentHandler())

	// Employees; static paths before :id
	r.Get("/employees/statistics", auth.RequirePermission("read", "Employee"), employee.StatisticsHandler())
	r.Get("/employees/export", auth.RequirePermission("export", "Employee"), employee.ExportEmployeesHandler())
	r.Get("/employees", auth.RequirePermission("read", "Employee"), employee.ListEmployeesHandler())
	r.Post("/employees", auth.RequirePermission("create", "Employee"), employee.CreateEmployeeHandler())
	r.Get("/employees/:id", auth.RequirePermission("read", "Employee"), employee.GetEmployeeHandler())
	r.Put("/employees/:id", auth.RequirePermission("update", "Employee"), employee.UpdateEmployeeHandler())
	r.Delete("/employees/:id", auth.RequirePermission("delete", "Employee"), employee.DeleteEmployeeHandler())

	// Assignments
	r.Get("/employees/:id/assignments", auth.RequirePermission("read", "Assignment"), assignment.ListAssignmentsHandler())
	r.Post("/employees/:id/assignments", auth.RequirePermission("create", "Assignment"), assignment.CreateAssignmentHandler())
	r.Post("/employees/:id/assignments/reconcile", auth.RequirePermission("update", "Assignment"), assignment.ReconcileHandler())
	r.Put("/assignments/:id/complete", auth.RequirePermission("update", "Assignment"), assignment.CompleteAssignmentHandler())
	r.Delete("/assignments/:id", auth.RequirePermission("delete", "Assignment"), assignment.DeleteAssignmentHandler())

	// Leave requests
	r.Get("/leave-requests", auth.RequirePermission("read", "Leave"), leave.ListLeavesHandler())
	r.Post("/leave-requests", auth.RequirePermission("create", "Leave"), leave.CreateLeaveHandler())
	r.Get("/leave-requests/:id", auth.RequirePermission("read", "Leave"), leave.GetLeaveHandler())
	r.Delete("/leave-requests/:id", auth.RequirePermission("create", "Leave"), leave.DeleteLeaveHandler())
	r.Post("/leave-requests/:id/approve", auth.RequirePermission("approve", "Leave"), leave.ApproveLeaveHandler())
	r.Post("/leave-requests/:id/reject", auth.RequirePermission("approve", "Leave"), leave.RejectLeaveHandler())

	// Timesheets
	r.Get("/timesheets", auth.RequirePermission("read", "Timesheet"), timesheet.ListTimesheetsHandler())
	r.Post("/timesheets", auth.RequirePermission("create", "Timesheet"), timesheet.CreateTimesheetHandler())
	r.Post("/timesheets/:id/approve", auth.RequirePermission("approve", "Timesheet"), timesheet.ApproveTimesheetHandler())
	r.Post("/timesheets/:id/reject", auth.RequirePermission("approve", "Timesheet"), timesheet.RejectTimesheetHandler())
	r.Delete("/timesheets/:id", auth.RequirePermission("delete", "Timesheet"), timesheet.DeleteTimesheetHandler())

	// Payroll
	r.Get("/payroll/export", auth.RequirePermission("export", "Payroll"), payroll.ExportPayrollHandler())
	r.Post("/payroll/generate-monthly", auth.RequirePermission("create", "Payroll"), payroll.GenerateHandler())
	r.Get("/payroll", auth.RequirePermission("read", "Payroll"), payroll.ListPayrollsHandler())
	r.Get("/payroll/:id", auth.RequirePermission("read", "Payroll"), payroll.GetPayrollHandler())
	r.Post("/payroll/:id/approve", auth.RequirePermission("approve", "Payroll"), payroll.ApprovePayrollHandler())
	r.Post("/payroll/:id/pay", auth.RequirePermission("approve", "Payroll"), payroll.PayPayrollHandler())
	r.Get("/payroll/:id/payslip", auth.RequirePermission("read", "Payroll"), payroll.PayslipHandler())

	// Advances
	r.Get("/advances", auth.RequirePermission("read", "Advance"), advance.ListAdvancesHandler())
	r.Post("/advances", auth.RequirePermission("create", "Advance"), advance.CreateAdvanceHandler())
	r.Get("/advances/:id", auth.RequirePermission("read", "Advance"), advance.GetAdvanceHandler())
	r.Delete("/advances/:id", auth.RequirePermission("create", "Advance"), advance.DeleteAdvanceHandler())
	r.Post("/advances/:id/approve", auth.RequirePermission("approve", "Advance"), advance.ApproveAdvanceHandler())
	r.Post("/advances/:id/reject", auth.RequirePermission("approve", "Advance"), advance.RejectAdvanceHandler())
}

func registerOperations(r fiber.Router, cfg *config.Config, client *erpnext.Client) {
	// Equipment
	r.Post("/equipment/status-check", auth.RequirePermission("manage", "Equipment"), equipment.StatusCheckHandler())
	r.Put("/equipment/assignments/:id/complete", auth.RequirePermission("update", "Equipment"), equipment.CompleteHistoryHandler())
	r.Get("/equipment", auth.RequirePermission("read", "Equipment"), equipment.ListEquipmentHandler())
	r.Post("/equipment", auth.RequirePermission("create", "Equipment"), equipment.CreateEquipmentHandler())
	r.Get("/equipment/:id", auth.RequirePermission("read", "Equipment"), equipment.GetEquipmentHandler())
	r.Put("/equipment/:id", auth.RequirePermission("update", "Equipment"), equipment.UpdateEquipmentHandler())
	r.Delete("/equipment/:id", auth.RequirePermission("delete", "Equipment"), equipment.DeleteEquipmentHandler())
	r.Get("/equipment/:id/rentals", auth.RequirePermission("read", "Equipment"), equipment.HistoryHandler())
	r.Post("/equipment/:id/assign", auth.RequirePermission("update", "Equipment"), equipment.AssignHandler())

	// Maintenance
	r.Get("/equipment/:id/maintenance", auth.RequirePermission("read", "Maintenance"), equipment.ListMaintenanceHandler())
	r.Post("/equipment/:id/maintenance", auth.RequirePermission("create", "Maintenance"), equipment.CreateMaintenanceHandler())
	r.Put("/maintenance/:id", auth.RequirePermission("update", "Maintenance"), equipment.UpdateMaintenanceHandler())

	// Customers
	r.Post("/customers/sync", auth.RequirePermission("manage", "Customer"), customer.SyncHandler(cfg, client))
	r.Get("/customers", auth.RequirePermission("read", "Customer"), customer.ListCustomersHandler())
	r.Post("/customers", auth.RequirePermission("create", "Customer"), customer.CreateCustomerHandler())
	r.Get("/customers/:id", auth.RequirePermission("read", "Customer"), customer.GetCustomerHandler())
	r.Put("/customers/:id", auth.RequirePermission("update", "Customer"), customer.UpdateCustomerHandler())
	r.Delete("/customers/:id", auth.RequirePermission("delete", "Customer"), customer.DeleteCustomerHandler())

	// Projects
	r.Get("/projects", auth.RequirePermission("read", "Project"), project.ListProjectsHandler())
	r.Post("/projects", auth.RequirePermission("create", "Project"), project.CreateProjectHandler())
	r.Get("/projects/:id", auth.RequirePermission("read", "Project"), project.GetProjectHandler())
	r.Put("/projects/:id", auth.RequirePermission("update", "Project"), project.UpdateProjectHandler())
	r.Delete("/projects/:id", auth.RequirePermission("delete", "Project"), project.DeleteProjectHandler())
	r.Get("/projects/:id/resources", auth.RequirePermission("read", "Project"), project.ResourcesHandler())

	// Rentals
	r.Get("/rentals", auth.RequirePermission("read", "Rental"), rental.ListRentalsHandler())
	r.Post("/rentals", auth.RequirePermission("create", "Rental"), rental.CreateRentalHandler())
	r.Get("/rentals/:id", auth.RequirePermission("read", "Rental"), rental.GetRentalHandler())
	r.Put("/rentals/:id", auth.RequirePermission("update", "Rental"), rental.UpdateRentalHandler())
	r.Delete("/rentals/:id", auth.RequirePermission("delete", "Rental"), rental.DeleteRentalHandler())
	r.Post("/rentals/:id/activate", auth.RequirePermission("update", "Rental"), rental.ActivateRentalHandler())
	r.Post("/rentals/:id/complete", auth.RequirePermission("update", "Rental"), rental.CompleteRentalHandler())
	r.Post("/rentals/:id/cancel", auth.RequirePermission("update", "Rental"), rental.CancelRentalHandler())
	r.Post("/rentals/:id/invoice", auth.RequirePermission("manage", "Rental"), rental.InvoiceRentalHandler(client))
}

func registerDocuments(r fiber.Router, cfg *config.Config, store storage.ObjectStore) {
	docs := r.Group("/documents", auth.RequirePermission("read", "Document"))
	docs.Get("/", documents.ListDocumentsHandler())
	docs.Post("/", auth.RequirePermission("create", "Document"), documents.UploadDocumentHandler(cfg, store))
	docs.Post("/combine", documents.CombineDocumentsHandler(store))
	docs.Get("/:id/download", documents.DownloadDocumentHandler(store))
	docs.Delete("/:id", auth.RequirePermission("delete", "Document"), documents.DeleteDocumentHandler(store))
}
