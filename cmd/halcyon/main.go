package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/halcyon-dev/halcyon"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configPath := flag.String("configPath", "halcyon.yaml", "path to the configuration file")
	level := flag.String("level", "", "override the logging level")

	flag.Parse()

	_ = godotenv.Load()

	fileConfig, err := halcyon.LoadFileConfig(*configPath)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	if *level != "" {
		fileConfig.Logging.Level = *level
	}

	logLevel, err := zerolog.ParseLevel(fileConfig.Logging.Level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}

	var writer io.Writer = consoleWriter

	if fileConfig.Logging.FileLoggingEnabled {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(fileConfig.Logging.Directory, fileConfig.Logging.Filename),
			MaxSize:    fileConfig.Logging.MaxSize,
			MaxBackups: fileConfig.Logging.MaxBackups,
			MaxAge:     fileConfig.Logging.MaxAge,
			Compress:   fileConfig.Logging.Compress,
		}

		if fileConfig.Logging.EncodeAsJSON {
			writer = io.MultiWriter(consoleWriter, fileWriter)
		} else {
			writer = io.MultiWriter(consoleWriter, zerolog.ConsoleWriter{
				Out:        fileWriter,
				NoColor:    true,
				TimeFormat: "2006-01-02 15:04:05",
			})
		}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(logLevel)

	config := fileConfig.ClientConfig()

	if token := os.Getenv("HALCYON_TOKEN"); token != "" {
		config.Token = token
	}

	client, err := halcyon.NewClient(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	if producer, err := buildProducer(fileConfig); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create producer")
	} else if producer != nil {
		defer producer.Close()

		client.WithProducer(producer)
	}

	if fileConfig.HTTP.Host != "" {
		statusServer := halcyon.NewStatusServer(client)

		go func() {
			if err := statusServer.Serve(fileConfig.HTTP.Host); err != nil {
				logger.Error().Err(err).Msg("Status API stopped")
			}
		}()

		defer statusServer.Shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = client.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start client")
	}

	<-ctx.Done()

	if err = client.Stop(); err != nil {
		logger.Error().Err(err).Msg("Client stopped with error")
	}
}

func buildProducer(fileConfig *halcyon.FileConfig) (halcyon.Producer, error) {
	producerConfig := fileConfig.Producer

	switch producerConfig.Type {
	case "":
		return nil, nil
	case "redis":
		return halcyon.NewRedisProducer(context.Background(), halcyon.RedisProducerConfig{
			Address:  producerConfig.Address,
			Password: producerConfig.Password,
			Channel:  producerConfig.Channel,
		})
	case "kafka":
		return halcyon.NewKafkaProducer(halcyon.KafkaProducerConfig{
			Brokers: producerConfig.Brokers,
			Topic:   producerConfig.Channel,
		}), nil
	case "jetstream":
		return halcyon.NewJetStreamProducer(halcyon.JetStreamProducerConfig{
			Address: producerConfig.Address,
			Subject: producerConfig.Channel,
		})
	case "stan":
		return halcyon.NewSTANProducer(halcyon.STANProducerConfig{
			Address:   producerConfig.Address,
			ClusterID: producerConfig.ClusterID,
			ClientID:  producerConfig.ClientID,
			Subject:   producerConfig.Channel,
		})
	default:
		return nil, halcyon.ErrUnknownProducer
	}
}
