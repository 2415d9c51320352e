package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the middleware server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 8080, "Port to run the server on")
	flags.String("host", "localhost", "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")

	flags.String("db-driver", "sqlite", "Database driver: 'sqlite' or 'pg'")
	flags.String("db-dsn", "file:./data/main.db", "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker. Example: pulsar+ssl://my-cluster.streamnative.cloud:6651")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	flags.String("sagemaker-endpoint-name", "", "Default async inference endpoint")
	flags.String("sagemaker-train-image-uri", "", "Training container image URI")
	flags.String("sagemaker-train-role-arn", "", "IAM role assumed by training jobs")

	flags.String("workflows-training-state-machine-arn", "", "State machine driving training runs")
	flags.String("workflows-endpoint-state-machine-arn", "", "State machine driving endpoint deployments")

	viper.BindPFlags(flags)
	bindEnvs()
}

func bindEnvs() {
	// Core settings, e.g. SDM_PORT
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")

	viper.BindEnv("db.driver")
	viper.BindEnv("db.dsn")
	viper.BindEnv("pulsar.url")

	// e.g. SDM_S3_ACCESS_KEY
	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.region_name")
	viper.BindEnv("s3.bucket_name")
	viper.BindEnv("s3.endpoint_url")

	viper.BindEnv("sagemaker.endpoint_name")
	viper.BindEnv("sagemaker.train_image_uri")
	viper.BindEnv("sagemaker.train_role_arn")
	viper.BindEnv("sagemaker.train_instance_type")
	viper.BindEnv("sagemaker.train_volume_size_gb")

	viper.BindEnv("workflows.training_state_machine_arn")
	viper.BindEnv("workflows.endpoint_state_machine_arn")
}

func runApp(_ *cobra.Command, _ []string) error {
	app, err := createNewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := runServer(app)
	if err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			fmt.Println("Server stopped successfully")
		}
		return err
	}

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	<-signalc
	return server.Stop(app.Context())
}

func createNewApp() (*app.App, error) {
	return app.NewApp(
		config.MustGetConfig(),
		app.WithMQ(),
		app.WithDBInitialization(),
		app.WithObjectStore(),
		app.WithRemoteExecution(),
		app.WithServices(),
	)
}

func runServer(app *app.App) (*server.Server, error) {
	server, err := server.NewServer(app.Config())
	if err != nil {
		return nil, err
	}

	// Setup the server routes
	server.SetupRoutes(app)

	errc := make(chan error, 1)
	go func() {
		fmt.Printf("Middleware started on port %v\n", app.Config().Port)
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		return nil, err
	default:
		return server, nil
	}
}
