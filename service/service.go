package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/daemon"
	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/relay"
	"github.com/calehh/dao-keeper/store"
	"github.com/calehh/dao-keeper/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

type Scanner interface {
	Scan(ctx context.Context) (*types.ScanResult, error)
}

type Relayer interface {
	Relay(ctx context.Context, s *relay.Submission) (common.Hash, error)
}

type History interface {
	GetExecutions(proposalID uint64, page int, pageSize int) ([]store.Execution, uint64, error)
	GetRelays(address string, page int, pageSize int) ([]store.RelayRecord, uint64, error)
}

// Options wires the handlers. A nil Scanner or Relayer answers with the
// matching *Err (server_misconfigured when unset) and never touches the ledger.
type Options struct {
	ListenAddr string
	Scanner    Scanner
	ScannerErr error
	Relayer    Relayer
	RelayerErr error
	History    History
	Gatherer   prometheus.Gatherer
	RateLimit  float64
	RateBurst  int
}

type Service struct {
	logger     cmtlog.Logger
	engine     *gin.Engine
	server     *http.Server
	listenAddr string

	scanner    Scanner
	scannerErr error
	relayer    Relayer
	relayerErr error
	history    History
	limiter    *ipRateLimiter

	quit     chan struct{}
	stopOnce sync.Once
}

func NewService(logger cmtlog.Logger, opts Options) *Service {
	r := gin.New()
	s := &Service{
		logger:     logger.With("module", "service"),
		engine:     r,
		listenAddr: opts.ListenAddr,
		scanner:    opts.Scanner,
		scannerErr: opts.ScannerErr,
		relayer:    opts.Relayer,
		relayerErr: opts.RelayerErr,
		history:    opts.History,
		quit:       make(chan struct{}),
	}
	if s.scanner == nil && s.scannerErr == nil {
		s.scannerErr = config.ErrMisconfigured
	}
	if s.relayer == nil && s.relayerErr == nil {
		s.relayerErr = config.ErrMisconfigured
	}
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	relayChain := []gin.HandlerFunc{}
	if opts.RateLimit > 0 {
		s.limiter = newIPRateLimiter(opts.RateLimit, opts.RateBurst)
		relayChain = append(relayChain, s.limiter.middleware())
	}
	relayChain = append(relayChain, s.handleRelay)

	r.GET("/daemon", s.handleDaemon)
	r.POST("/relay", relayChain...)
	r.POST("/getExecutions", s.handleGetExecutions)
	r.POST("/getRelays", s.handleGetRelays)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

func (s *Service) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called. It returns nil after a clean stop.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.limiter != nil {
		go s.pruneLoop()
	}
	s.logger.Info("http service listening", "addr", s.listenAddr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down. Later calls only repeat the shutdown.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Service) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.limiter.prune()
		case <-s.quit:
			return
		}
	}
}

func (s *Service) handleDaemon(c *gin.Context) {
	if s.scanner == nil {
		s.writeError(c, s.scannerErr, http.StatusInternalServerError)
		return
	}
	res, err := s.scanner.Scan(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		s.writeError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) handleRelay(c *gin.Context) {
	if s.relayer == nil {
		s.writeError(c, s.relayerErr, 0)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.writeError(c, failure.New(failure.KindBadRequest, "unreadable body"), 0)
		return
	}
	sub, err := relay.ParseSubmission(body)
	if err != nil {
		s.writeError(c, err, 0)
		return
	}
	hash, err := s.relayer.Relay(context.WithoutCancel(c.Request.Context()), sub)
	if err != nil {
		s.writeError(c, err, 0)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}

type GetExecutionsReq struct {
	ProposalId uint64 `json:"proposalId"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
}

type GetExecutionsResponse struct {
	Executions []store.Execution `json:"executions"`
	Total      uint64            `json:"total"`
}

func (s *Service) handleGetExecutions(c *gin.Context) {
	var requestData GetExecutionsReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	response := GetExecutionsResponse{Executions: make([]store.Execution, 0)}
	if s.history == nil {
		c.JSON(http.StatusOK, response)
		return
	}
	page, pageSize := paging(requestData.Page, requestData.PageSize)
	executions, total, err := s.history.GetExecutions(requestData.ProposalId, page, pageSize)
	if err != nil {
		s.writeError(c, err, http.StatusInternalServerError)
		return
	}
	if executions != nil {
		response.Executions = executions
	}
	response.Total = total
	c.JSON(http.StatusOK, response)
}

type GetRelaysReq struct {
	Address  string `json:"address"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type GetRelaysResponse struct {
	Relays []store.RelayRecord `json:"relays"`
	Total  uint64              `json:"total"`
}

func (s *Service) handleGetRelays(c *gin.Context) {
	var requestData GetRelaysReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	address := ""
	if requestData.Address != "" {
		if !common.IsHexAddress(requestData.Address) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "address is not valid"})
			return
		}
		address = common.HexToAddress(requestData.Address).Hex()
	}
	response := GetRelaysResponse{Relays: make([]store.RelayRecord, 0)}
	if s.history == nil {
		c.JSON(http.StatusOK, response)
		return
	}
	page, pageSize := paging(requestData.Page, requestData.PageSize)
	relays, total, err := s.history.GetRelays(address, page, pageSize)
	if err != nil {
		s.writeError(c, err, http.StatusInternalServerError)
		return
	}
	if relays != nil {
		response.Relays = relays
	}
	response.Total = total
	c.JSON(http.StatusOK, response)
}

func paging(page, pageSize int) (int, int) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// writeError renders err as {error, message, retryable, requestId}. status
// overrides the classified status when non-zero, except for the fixed
// configuration and busy cases.
func (s *Service) writeError(c *gin.Context, err error, status int) {
	var (
		code      string
		message   string
		reason    string
		retryable bool
	)
	switch {
	case errors.Is(err, config.ErrInvalidRelayerKey):
		status = http.StatusBadRequest
		code = config.ErrInvalidRelayerKey.Error()
		message = "the relayer private key must be 32 bytes of hex"
	case errors.Is(err, config.ErrMisconfigured):
		status = http.StatusInternalServerError
		code = config.ErrMisconfigured.Error()
		message = failure.New(failure.KindMisconfiguration, "").Message()
	case errors.Is(err, daemon.ErrScanInProgress):
		status = http.StatusConflict
		code = daemon.ErrScanInProgress.Error()
		message = "a scan is already running, try again shortly"
		retryable = true
	default:
		fe := failure.Classify(err)
		if status == 0 {
			status = fe.Status()
		}
		code = fe.Code()
		message = fe.Message()
		retryable = fe.Retryable()
		if fe.Kind == failure.KindBadRequest {
			reason = fe.Reason
		}
	}
	s.logger.Error("request failed", "path", c.Request.URL.Path, "status", status, "code", code, "err", err, "requestId", c.GetString(requestIDKey))
	body := gin.H{
		"error":     code,
		"message":   message,
		"retryable": retryable,
		"requestId": c.GetString(requestIDKey),
	}
	if reason != "" {
		body["reason"] = reason
	}
	c.AbortWithStatusJSON(status, body)
}
