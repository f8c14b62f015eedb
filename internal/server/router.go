// Package server assembles the HTTP API: services, handlers, middleware and
// routes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Larvizub/arvidev-presupuestos/internal/docs" // Import swagger docs
	"github.com/Larvizub/arvidev-presupuestos/internal/events"
	"github.com/Larvizub/arvidev-presupuestos/internal/handlers"
	"github.com/Larvizub/arvidev-presupuestos/internal/metrics"
	"github.com/Larvizub/arvidev-presupuestos/internal/middleware"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

// Services bundles the business services behind the API.
type Services struct {
	Users        services.UserServicer
	Budgets      services.BudgetServicer
	Transactions services.TransactionServicer
	Dashboard    services.DashboardServicer
	Activity     services.ActivityServicer
}

// NewServices wires every service to st. Activity entries are also sent to
// publisher.
func NewServices(st store.Store, publisher events.Publisher, adminEmails []string) *Services {
	activity := services.NewActivityService(st, publisher)
	users := services.NewUserService(st, activity, adminEmails)
	budgets := services.NewBudgetService(st, users, activity)
	transactions := services.NewTransactionService(st, activity)
	return &Services{
		Users:        users,
		Budgets:      budgets,
		Transactions: transactions,
		Dashboard:    services.NewDashboardService(budgets, transactions),
		Activity:     activity,
	}
}

// NewRouter builds the Gin engine. m may be nil, in which case no metrics are
// collected or exposed.
func NewRouter(svc *Services, m *metrics.Metrics) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users)
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions)
	dashboardHandler := handlers.NewDashboardHandler(svc.Dashboard)
	activityHandler := handlers.NewActivityHandler(svc.Activity)
	adminHandler := handlers.NewAdminHandler(svc.Users)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	if m != nil {
		router.Use(m.Middleware())
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		router.GET("/metrics", m.Handler())
	}

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	v1.GET("/currencies", handlers.GetCurrencies)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/profile", authHandler.UpdateProfile)
	protected.PUT("/profile/currency", authHandler.SetCurrency)
	protected.GET("/activity", activityHandler.GetActivity)
	protected.GET("/dashboard", dashboardHandler.GetDashboard)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/stream", budgetHandler.StreamBudgets)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.POST("/:id/share", budgetHandler.ShareBudget)

	transactions := budgets.Group("/:id/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/stream", transactionHandler.StreamTransactions)
	transactions.GET("/:txId", transactionHandler.GetTransactionByID)
	transactions.PUT("/:txId", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:txId", transactionHandler.DeleteTransaction)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", adminHandler.ListUsers)
	admin.PUT("/users/:id/role", adminHandler.SetRole)

	return router
}
