package service

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
	"github.com/novneetsingh/Identity-Reconciliation/internal/reconcile"
	"github.com/novneetsingh/Identity-Reconciliation/internal/store"
)

// DriverName returns the configured database driver, "mysql" (the default)
// or "postgres".
func DriverName() string {
	if driver := os.Getenv("DBDRIVER"); driver != "" {
		return driver
	}
	return "mysql"
}

// StoreTimeout returns the per-request storage deadline. The DB_TIMEOUT
// environment variable holds whole seconds; unset or invalid values fall
// back to the engine default.
func StoreTimeout() time.Duration {
	seconds, err := strconv.Atoi(os.Getenv("DB_TIMEOUT"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// CreateDatabase initializes and returns a database connection. The
// connection parameters are taken from the system's environment variables:
// DBDRIVER, DBHOST, DBUSER, DBPWD, and DBNAME.
func CreateDatabase() *sql.DB {
	name := os.Getenv("DBNAME")
	if name == "" {
		name = "test"
	}
	var dsn string
	driver := DriverName()
	switch driver {
	case "postgres":
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			os.Getenv("DBHOST"), os.Getenv("DBUSER"), os.Getenv("DBPWD"), name)
	default:
		dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			os.Getenv("DBUSER"), os.Getenv("DBPWD"), os.Getenv("DBHOST"), name)
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	return sqlDB
}

// SetupDatabaseWrapper wraps the specified sql database in sqlx and builds
// the SQL-backed contact store. The database argument can be a real database
// for production use or a mock database within unit tests; driverName decides
// placeholder rebinding.
func SetupDatabaseWrapper(sqlDB *sql.DB, driverName string) *store.SQLStore {
	return store.NewSQLStore(sqlx.NewDb(sqlDB, driverName))
}

// SetupHttpRouter initializes the REST API router and registers all
// endpoints. HTTP request logging can be switched off by setting the
// GIN_LOGGING environment variable to "off".
func SetupHttpRouter(engine *reconcile.Engine) *gin.Engine {
	var router *gin.Engine
	if strings.EqualFold(os.Getenv("GIN_LOGGING"), "off") {
		router = gin.New()
	} else {
		router = gin.Default()
	}
	h := handler{engine: engine}
	router.POST("/identify", h.identify)
	router.GET("/contacts/:id", h.findGroupByContactID)
	router.GET("/health", h.health)
	return router
}

// handler holds the reconciliation engine the endpoints delegate to.
type handler struct {
	engine *reconcile.Engine
}

// identify reconciles the (email, phoneNumber) pair from the request body
// and responds with the consolidated identity view of the resulting group.
//
// Example REST API call:
//
//	> curl http://localhost:8080/identify --request "POST" --include --header "Content-Type: application/json" --data '{"email": "alice@example.com", "phoneNumber": "111222"}'
func (h handler) identify(c *gin.Context) {
	var req model.IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	resp, err := h.engine.Identify(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, resp)
}

// findGroupByContactID locates the identity group containing the contact
// whose ID matches the id parameter of the request URL and responds with the
// group's consolidated view.
//
// Example REST API call:
//
//	> curl "http://localhost:8080/contacts/56"
func (h handler) findGroupByContactID(c *gin.Context) {
	id, errConv := strconv.ParseInt(c.Param("id"), 10, 64)
	if errConv != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "invalid id parameter"})
		return
	}
	resp, err := h.engine.Lookup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "contact not found"})
			return
		}
		renderError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, resp)
}

// health reports liveness.
func (h handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderError maps the reconciliation error taxonomy onto HTTP status codes.
// Retryable failures carry a "retryable" marker so callers can tell them
// apart from permanent ones.
func renderError(c *gin.Context, err error) {
	var rerr *reconcile.Error
	if !errors.As(err, &rerr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	switch rerr.Kind {
	case reconcile.KindValidation:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": rerr.Msg})
	case reconcile.KindConflict:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": rerr.Msg, "retryable": true})
	case reconcile.KindUnavailable:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": rerr.Msg, "retryable": true})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": rerr.Msg})
	}
}
