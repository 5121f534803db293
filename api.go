package halcyon

import (
	"net/http"
	"time"

	routing "github.com/fasthttp/router"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// StatusServer exposes a read-only HTTP surface: shard status and
// prometheus metrics. It never mutates client state.
type StatusServer struct {
	logger zerolog.Logger

	client *Client
	server *fasthttp.Server
}

type shardStatus struct {
	ShardID   int32  `json:"shard_id"`
	Stage     string `json:"stage"`
	LatencyMS int64  `json:"latency_ms"`
	Sequence  int64  `json:"sequence"`
}

type statusResponse struct {
	Identifier string        `json:"identifier"`
	Version    string        `json:"version"`
	User       string        `json:"user,omitempty"`
	Shards     []shardStatus `json:"shards"`
}

func NewStatusServer(client *Client) *StatusServer {
	s := &StatusServer{
		logger: client.logger,
		client: client,
	}

	router := routing.New()
	router.GET("/api/status", s.handleStatus)
	router.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	s.server = &fasthttp.Server{
		Handler:     router.Handler,
		Name:        "Halcyon/" + Version,
		ReadTimeout: 10 * time.Second,
	}

	return s
}

// Serve listens on addr until Shutdown is called.
func (s *StatusServer) Serve(addr string) error {
	s.logger.Info().Str("host", addr).Msg("Serving status API")

	return s.server.ListenAndServe(addr)
}

// Shutdown gracefully stops the server.
func (s *StatusServer) Shutdown() error {
	return s.server.Shutdown()
}

func (s *StatusServer) handleStatus(ctx *fasthttp.RequestCtx) {
	response := statusResponse{
		Identifier: s.client.config.Identifier,
		Version:    Version,
	}

	if user := s.client.User(); user != nil {
		response.User = user.Username
	}

	s.client.shards.Range(func(shardID int32, shard *Shard) bool {
		response.Shards = append(response.Shards, shardStatus{
			ShardID:   shardID,
			Stage:     shard.Stage().String(),
			LatencyMS: shard.Latency().Milliseconds(),
			Sequence:  shard.Session().Sequence(),
		})

		return true
	})

	body, err := halcyonjson.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(http.StatusInternalServerError)

		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
