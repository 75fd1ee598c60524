package main

import (
	"log"
	"os"

	"github.com/novneetsingh/Identity-Reconciliation/internal/reconcile"
	"github.com/novneetsingh/Identity-Reconciliation/internal/service"
)

// Usage example on the command line:
// > PORT=8080 DBHOST=localhost DBUSER=dirk DBPWD=bullo92 DBNAME=test GIN_MODE=release GIN_LOGGING=OFF go run main.go
func main() {
	sqlDB := service.CreateDatabase()
	defer sqlDB.Close()
	contactStore := service.SetupDatabaseWrapper(sqlDB, service.DriverName())
	engine := reconcile.NewEngine(contactStore, service.StoreTimeout())
	router := service.SetupHttpRouter(engine)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := router.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
