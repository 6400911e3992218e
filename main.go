package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pitabwire/frame"

	"github.com/nyumbani/service-rentpay/config"
	"github.com/nyumbani/service-rentpay/service/business"
	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/events"
	"github.com/nyumbani/service-rentpay/service/handler"
	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/nyumbani/service-rentpay/service/repository"
	"github.com/nyumbani/service-rentpay/service/router"
)

func main() {
	serviceName := "service_rentpay"
	ctx := context.Background()

	rentPayConfig, err := frame.ConfigFromEnv[config.RentPayConfig]()
	if err != nil {
		fmt.Printf("could not load config: %v\n", err)
	}
	ctx, service := frame.NewServiceWithContext(ctx, serviceName, frame.Config(&rentPayConfig))

	logger := service.L(ctx).WithField("type", "main")

	defer service.Stop(ctx)

	logger.Info("starting service...")
	serviceOptions := []frame.Option{frame.Datastore(ctx)}
	service.Init(serviceOptions...)

	if rentPayConfig.DoDatabaseMigrate() {
		err = service.MigrateDatastore(ctx, rentPayConfig.GetDatabaseMigrationPath(),
			&models.PaymentRecord{}, &models.Property{})
		if err != nil {
			logger.WithError(err).Fatal("could not migrate successfully")
		}
		return
	}

	db := service.DB(ctx, false)
	if db == nil {
		logger.Fatal("database connection is nil, check DATABASE_URL and database availability")
		return
	}
	if err = db.AutoMigrate(&models.PaymentRecord{}, &models.Property{}); err != nil {
		logger.WithError(err).Fatal("could not auto-migrate database tables")
		return
	}

	gateway := coreapi.New(
		rentPayConfig.MpesaConsumerKey,
		rentPayConfig.MpesaConsumerSecret,
		rentPayConfig.MpesaBusinessShortCode,
		rentPayConfig.MpesaPasskey,
		rentPayConfig.MpesaBaseURL,
	)
	gateway.CallbackURL = rentPayConfig.MpesaCallbackURL
	gateway.B2BResultURL = rentPayConfig.B2BResultURL()
	gateway.TimeoutURL = rentPayConfig.B2BTimeoutURL()
	gateway.InitiatorName = rentPayConfig.MpesaInitiatorName
	gateway.SecurityCredential = rentPayConfig.MpesaSecurityCredential

	paymentRepo := repository.NewPaymentRepository(ctx, service)
	propertyRepo := repository.NewPropertyRepository(ctx, service)

	disbursementBusiness := business.NewDisbursementBusiness(ctx, service, &rentPayConfig, gateway, paymentRepo)
	collectionBusiness, err := business.NewCollectionBusiness(ctx, service, &rentPayConfig,
		gateway, paymentRepo, propertyRepo, disbursementBusiness)
	if err != nil {
		logger.WithError(err).Fatal("could not setup collection business")
	}
	balanceBusiness := business.NewBalanceBusiness(ctx, service, paymentRepo, propertyRepo)

	rentPayServer := &handler.RentPayServer{
		Service:       service,
		Collections:   collectionBusiness,
		Disbursements: disbursementBusiness,
		Balances:      balanceBusiness,
	}

	serviceOptions = append(serviceOptions,
		frame.RegisterEvents(
			&events.PaymentNotify{Service: service, Topic: rentPayConfig.NotificationTopic},
		))

	notificationURL := resolveNotificationURL(ctx, service, &rentPayConfig)
	serviceOptions = append(serviceOptions,
		frame.RegisterPublisher(rentPayConfig.NotificationTopic, notificationURL))

	serviceOptions = append(serviceOptions,
		frame.HttpHandler(router.NewRouter(rentPayServer, router.PrincipalHeaderMiddleware())))

	service.Init(serviceOptions...)

	logger.WithField("server http port", rentPayConfig.HttpServerPort).
		Info("initiating server operations")

	err = service.Run(ctx, ":8080")
	if err != nil {
		logger.WithError(err).Fatal("could not run server")
	}
}

// resolveNotificationURL probes the configured broker before registering the
// publisher so a missing NATS server degrades to in-memory messaging instead
// of failing startup. Notifications are advisory, losing them beats not
// accepting payments.
func resolveNotificationURL(ctx context.Context, service *frame.Service, cfg *config.RentPayConfig) string {
	logger := service.L(ctx).WithField("type", "main")

	notificationURL := cfg.NotificationURL
	if !strings.HasPrefix(notificationURL, "nats://") {
		logger.WithField("url", notificationURL).Info("using in-memory pubsub for notifications")
		return notificationURL
	}

	maxRetries := 5
	for i := range maxRetries {
		nc, err := nats.Connect(notificationURL)
		if err != nil {
			logger.WithError(err).WithField("attempt", i+1).Warn("failed to connect to NATS, retrying after delay")
			time.Sleep(2 * time.Second)
			continue
		}
		nc.Close()

		url := notificationURL
		if strings.Contains(url, "?") {
			url += "&subject=" + cfg.NotificationTopic
		} else {
			url += "?subject=" + cfg.NotificationTopic
		}
		logger.WithField("natsURL", url).WithField("topic", cfg.NotificationTopic).
			Info("registering notification publisher with NATS")
		return url
	}

	fallback := "mem://" + cfg.NotificationTopic
	logger.WithField("retries", maxRetries).WithField("fallbackURL", fallback).
		Warn("failed to connect to NATS after maximum retries, falling back to memory-based pubsub")
	return fallback
}
