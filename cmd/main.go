package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"access_service/internal/config"
	"access_service/internal/database/mongo"
	"access_service/internal/events"
	"access_service/internal/handlers"
	"access_service/internal/identity"
	"access_service/internal/mayan"
	"access_service/internal/repository"
	"access_service/internal/service"
	"access_service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/coffre", "log", "access_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.ServiceConfig
	repos := repository.Repositories_instance

	publisher, err := events.NewEventPublisher(cfg.RabbitURI())
	if err != nil {
		log.Fatalf("Failed to create event publisher: %v", err)
	}
	defer publisher.Close()

	documentChecker := mayan.NewClient(cfg.MayanURL, cfg.MayanUsername, cfg.MayanPassword)

	grantService := service.NewGrantService(repos.GrantRepository, repos.AuditRepository, repos.RedisRepository, documentChecker, publisher)
	resolverService := service.NewResolverService(repos.GrantRepository, repos.AuditRepository)
	requestService := service.NewRequestService(repos.RequestRepository, grantService, repos.AuditRepository, publisher)
	templateService := service.NewTemplateService(repos.TemplateRepository, grantService)
	bulkService := service.NewBulkService(grantService, cfg.BulkWorkers)
	auditService := service.NewAuditService(repos.AuditRepository)

	consumer, err := events.NewEventConsumer(cfg.RabbitURI(), grantService)
	if err != nil {
		log.Fatalf("Failed to create event consumer: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Printf("Error starting event consumer: %v", err)
	}
	defer consumer.Close()

	app := fiber.New(fiber.Config{})
	app.Use(identity.Middleware(cfg.JWTSecret))

	handlers.NewAccessHandler(grantService, resolverService, bulkService).RegisterRoutes(app)
	handlers.NewRequestHandler(requestService).RegisterRoutes(app)
	handlers.NewTemplateHandler(templateService).RegisterRoutes(app)
	handlers.NewAuditHandler(auditService).RegisterRoutes(app)
	handlers.NewPermissionHandler().RegisterRoutes(app)

	if err := discovery.ServiceDiscovery.Register(); err != nil {
		log.Printf("Error registering with Consul: %v", err)
	}

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	if err := discovery.ServiceDiscovery.Deregister(); err != nil {
		log.Printf("Error deregistering from Consul: %v", err)
	}

	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	mongo.DisconnectMongo()

	<-doneChan
	log.Println("Server exited, goodbye!")
}
