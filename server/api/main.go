package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/auth"
	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/paradexapi"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
	"github.com/qlandys/paradex-auth/pkg/types"
)

type Config struct {
	Addr         string
	APIBase      string
	ChainID      string
	Account      string
	L2PrivateKey string
	LogLevel     string
	LogFormat    string
	Auth         auth.Config
}

type Server struct {
	cfg      Config
	tokens   *auth.Manager
	pipeline *order.Pipeline
}

type okResp struct {
	OK bool `json:"ok"`
}

type errorResp struct {
	Error string `json:"error"`
}

type tokenResp struct {
	JWT       string `json:"jwt"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

type unauthorizedReq struct {
	Token  string `json:"token"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

type unauthorizedResp struct {
	Refreshed bool   `json:"refreshed"`
	JWT       string `json:"jwt,omitempty"`
}

type signOrderReq struct {
	Market             string   `json:"market"`
	Side               string   `json:"side"`
	Type               string   `json:"type"`
	Size               string   `json:"size"`
	Price              string   `json:"price"`
	ClientID           string   `json:"client_id"`
	Instruction        string   `json:"instruction"`
	Flags              []string `json:"flags"`
	SignatureTimestamp int64    `json:"signature_timestamp"`
}

func main() {
	flags := pflag.NewFlagSet("api", pflag.ExitOnError)
	flags.String("addr", ":8686", "listen address")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		log.Fatalf("bind flags: %v", err)
	}
	if err := godotenv.Load(v.GetString("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load env file: %v", err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServerFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Infof("Paradex signing API listening on %s", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}

// loadConfig reads the environment through v. Flags bound to v take
// precedence over the environment.
func loadConfig(v *viper.Viper) (Config, error) {
	defaults := auth.DefaultConfig()
	v.SetDefault("paradex_api_base", paradexapi.ProdBaseURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("auth_soft_ttl", defaults.SoftTTL)
	v.SetDefault("auth_signature_ttl", defaults.SignatureTTL)
	v.SetDefault("auth_refresh_timeout", defaults.RefreshTimeout)
	v.SetDefault("auth_expiry_grace", defaults.ExpiryGrace)
	v.AutomaticEnv()

	addr := v.GetString("addr")
	if env := v.GetString("listen_addr"); env != "" && !v.IsSet("addr") {
		addr = env
	}

	cfg := Config{
		Addr:         addr,
		APIBase:      v.GetString("paradex_api_base"),
		ChainID:      strings.TrimSpace(v.GetString("paradex_chain_id")),
		Account:      strings.TrimSpace(v.GetString("paradex_account")),
		L2PrivateKey: strings.TrimSpace(v.GetString("paradex_l2_private_key")),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		Auth: auth.Config{
			SoftTTL:        v.GetDuration("auth_soft_ttl"),
			SignatureTTL:   v.GetDuration("auth_signature_ttl"),
			RefreshTimeout: v.GetDuration("auth_refresh_timeout"),
			ExpiryGrace:    v.GetDuration("auth_expiry_grace"),
		},
	}
	if err := cfg.Auth.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setupLogger(level, format string) {
	logger := log.StandardLogger()
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %s, using info: %v", level, err)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	if format == "text" {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.JSONFormatter{})
	}
}

// newServerFromConfig wires the REST client, token manager and order
// pipeline. Without an account or L2 key the server still starts; token and
// signing endpoints then answer 503.
func newServerFromConfig(ctx context.Context, cfg Config) (*Server, error) {
	client, err := paradexapi.NewClient(cfg.APIBase)
	if err != nil {
		return nil, err
	}

	var chainID *big.Int
	if cfg.ChainID != "" {
		chainID = typeddata.ChainIDFromString(cfg.ChainID)
	} else {
		sysCfg, err := client.GetSystemConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch system config: %w", err)
		}
		chainID = typeddata.ChainIDFromString(sysCfg.ChainId)
	}

	var creds *auth.Credentials
	if cfg.Account != "" && cfg.L2PrivateKey != "" {
		kp, err := signer.KeyPairFromHex(cfg.L2PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("l2 private key: %w", err)
		}
		creds = &auth.Credentials{Account: cfg.Account, KeyPair: kp}
	} else {
		log.Warn("PARADEX_ACCOUNT or PARADEX_L2_PRIVATE_KEY not set; auth and signing are disabled")
	}

	tokens, err := auth.NewManager(chainID, creds, client, cfg.Auth)
	if err != nil {
		return nil, err
	}
	client.Auth(tokens)
	return newServer(cfg, chainID, creds, tokens)
}

func newServer(cfg Config, chainID *big.Int, creds *auth.Credentials, tokens *auth.Manager) (*Server, error) {
	s := &Server{cfg: cfg, tokens: tokens}
	if creds != nil {
		p, err := order.NewPipeline(chainID, creds.Account, creds.KeyPair)
		if err != nil {
			return nil, err
		}
		s.pipeline = p
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", s.handleHealth)
	api.HandleFunc("/auth/token", s.handleToken)
	api.HandleFunc("/auth/unauthorized", s.handleUnauthorized)
	api.HandleFunc("/orders/sign", s.handleSignOrder)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", withJSON(api))
	return mux
}

func withJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResp{OK: true})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
		return
	}
	if _, err := s.tokens.EnsureFresh(r.Context()); err != nil {
		log.WithError(err).Warn("token refresh failed")
		writeJSON(w, authErrorStatus(err), errorResp{Error: err.Error()})
		return
	}
	tok, _ := s.tokens.BearerToken()
	writeJSON(w, http.StatusOK, tokenResp{
		JWT:       tok.Value,
		IssuedAt:  tok.IssuedAt.Unix(),
		ExpiresAt: tok.ExpiresAt.Unix(),
	})
}

// handleUnauthorized lets a client report a failed response made with a
// token obtained here. An expired token is replaced once no matter how many
// clients report it.
func (s *Server) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
		return
	}
	var req unauthorizedReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	refreshed, err := s.tokens.OnUnauthorizedToken(r.Context(), req.Token, req.Status, []byte(req.Body))
	if err != nil {
		log.WithError(err).Warn("token reacquisition failed")
		writeJSON(w, authErrorStatus(err), errorResp{Error: err.Error()})
		return
	}
	resp := unauthorizedResp{Refreshed: refreshed}
	if refreshed {
		resp.JWT = s.tokens.Token()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
		return
	}
	if s.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: auth.ErrCredentialsMissing.Error()})
		return
	}
	var req signOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	o, err := req.toOrder()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	payload, err := s.pipeline.PrepareAndSign(o)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, order.ErrInvalidSize) || errors.Is(err, order.ErrInvalidPrice) || errors.Is(err, order.ErrUnsupportedOrderType) || errors.Is(err, typeddata.ErrUnencodableField) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResp{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r signOrderReq) toOrder() (*order.Order, error) {
	market := strings.TrimSpace(r.Market)
	if market == "" || r.Side == "" || r.Type == "" || strings.TrimSpace(r.Size) == "" {
		return nil, fmt.Errorf("missing params")
	}
	typ, err := types.ParseOrderType(r.Type)
	if err != nil {
		return nil, err
	}
	side, err := types.ParseOrderSide(r.Side)
	if err != nil {
		return nil, err
	}
	size, err := decimal.NewFromString(strings.TrimSpace(r.Size))
	if err != nil {
		return nil, fmt.Errorf("size: %v", err)
	}

	o := order.New(market, typ, side, size)
	if !typ.IsMarket() {
		price := strings.TrimSpace(r.Price)
		if price == "" {
			return nil, fmt.Errorf("missing price")
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("price: %v", err)
		}
		o.LimitPrice = &p
	}
	o.ClientID = r.ClientID
	o.Flags = r.Flags
	o.SignatureTimestamp = r.SignatureTimestamp
	if r.Instruction != "" {
		o.Instruction = strings.ToUpper(r.Instruction)
	}
	return o, nil
}

func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrCredentialsMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, paradexapi.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
