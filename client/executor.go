package client

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

// Executor issues single logical API operations over fasthttp and maps every
// outcome onto the classified error taxonomy. It attaches the current session
// token when one exists and reports an unauthorized settlement to its
// observer exactly once per request. It never retries; retry policy belongs
// to callers.
type Executor struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	client         *fasthttp.Client
	baseURL        string
	config         *types.APIConfig
	circuitBreaker *CircuitBreaker
	tokenSource    atomic.Pointer[types.TokenSource]
	onUnauthorized atomic.Pointer[types.UnauthorizedObserver]
	state          atomic.Value
	requestTimeout time.Duration
}

// errorBody is the wire shape of API failures. Detail is a string for plain
// errors and a structured list for validation failures.
type errorBody struct {
	Detail interface{} `json:"detail"`
}

func NewExecutor(ctx context.Context, logger types.Logger, config *types.APIConfig) (*Executor, error) {
	if config == nil || config.BaseURL == "" {
		return nil, types.ErrConfigIsNil
	}

	timeout := config.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	execCtx, cancel := context.WithCancel(ctx)

	executor := &Executor{
		ctx:    execCtx,
		cancel: cancel,
		logger: logger,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:        config.BaseURL,
		config:         config,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger),
		requestTimeout: timeout,
	}

	executor.state.Store(StateStopped)

	return executor, nil
}

// SetTokenSource wires the session manager in as the credential source.
func (e *Executor) SetTokenSource(ts types.TokenSource) {
	e.tokenSource.Store(&ts)
}

// SetUnauthorizedObserver registers the callback invoked once per request
// that settles as unauthorized.
func (e *Executor) SetUnauthorizedObserver(observer types.UnauthorizedObserver) {
	e.onUnauthorized.Store(&observer)
}

func (e *Executor) Start() error {
	if !e.transitionState(StateStopped, StateRunning) {
		return types.ErrManagerAlreadyRunning
	}

	e.logger.Info("Request executor started", zap.String("base_url", e.baseURL))
	return nil
}

func (e *Executor) Stop() error {
	if !e.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		e.state.Store(StateStopped)
	}()

	e.cancel()
	e.logger.Debug("Request executor stopped")
	return nil
}

func (e *Executor) IsRunning() bool {
	return e.getState() == StateRunning
}

func (e *Executor) Do(ctx context.Context, request types.Request, opts *types.CallOptions) ([]byte, error) {
	if !e.IsRunning() {
		return nil, types.ErrExecutorStopped
	}

	if !e.circuitBreaker.CanExecute() {
		return nil, types.NewNetworkError(types.ErrCircuitBreakerOpen)
	}

	timeout := e.requestTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(e.buildURL(request))
	req.Header.SetMethod(request.Method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("X-Request-ID", uuid.NewString())

	if ts := e.tokenSource.Load(); ts != nil {
		if token, ok := (*ts).Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	if request.Body != nil {
		jsonData, err := utils.Marshal(request.Body)
		if err != nil {
			return nil, types.WrapError(err, "failed to marshal request body")
		}
		req.SetBody(jsonData)
		req.Header.SetContentType("application/json")
	}

	done := make(chan error, 1)
	go func() {
		done <- e.client.DoTimeout(req, resp, timeout)
	}()

	select {
	case err := <-done:
		if err != nil {
			e.circuitBreaker.RecordFailure()
			e.logger.Debug("Request transport failure",
				zap.String("method", request.Method),
				zap.String("path", request.Path),
				zap.Error(err))
			return nil, types.NewNetworkError(err)
		}
	case <-callCtx.Done():
		e.circuitBreaker.RecordFailure()
		return nil, types.NewNetworkError(callCtx.Err())
	case <-e.ctx.Done():
		return nil, types.ErrExecutorStopped
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, types.NewNetworkError(err)
	}

	return e.classify(request, resp.StatusCode(), body)
}

func (e *Executor) buildURL(request types.Request) string {
	if len(request.Query) == 0 {
		return e.baseURL + request.Path
	}

	values := url.Values{}
	for key, value := range request.Query {
		values.Set(key, value)
	}
	return e.baseURL + request.Path + "?" + values.Encode()
}

// classify maps a settled response to a payload or one classified error.
// The unauthorized observer fires here, which is the single settlement point
// of every request.
func (e *Executor) classify(request types.Request, status int, body []byte) ([]byte, error) {
	if status >= 200 && status < 300 {
		e.circuitBreaker.RecordSuccess()
		return body, nil
	}

	if status >= 500 {
		e.circuitBreaker.RecordFailure()
	} else {
		e.circuitBreaker.RecordSuccess()
	}

	message, details := parseErrorBody(body)

	switch {
	case status == fasthttp.StatusUnauthorized:
		if observer := e.onUnauthorized.Load(); observer != nil && *observer != nil {
			(*observer)()
		}
		return nil, types.NewAPIError(types.ErrorKindUnauthorized, status, message, nil)
	case status == fasthttp.StatusNotFound:
		return nil, types.NewAPIError(types.ErrorKindNotFound, status, message, nil)
	case status == fasthttp.StatusBadRequest || status == fasthttp.StatusUnprocessableEntity:
		return nil, types.NewAPIError(types.ErrorKindValidation, status, message, details)
	default:
		e.logger.Debug("Unclassified response",
			zap.String("method", request.Method),
			zap.String("path", request.Path),
			zap.Int("status", status))
		return nil, types.NewAPIError(types.ErrorKindUnknown, status, message, nil)
	}
}

func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	switch string(resp.Header.ContentEncoding()) {
	case "gzip":
		return resp.BodyGunzip()
	case "br":
		reader := brotli.NewReader(bytes.NewReader(resp.Body()))
		return io.ReadAll(reader)
	default:
		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		return body, nil
	}
}

func parseErrorBody(body []byte) (string, interface{}) {
	if len(body) == 0 {
		return "", nil
	}

	var parsed errorBody
	if err := utils.Unmarshal(body, &parsed); err != nil {
		return utils.BytesToString(body), nil
	}

	if message, ok := parsed.Detail.(string); ok {
		return message, nil
	}

	return "request rejected", parsed.Detail
}

func (e *Executor) getState() State {
	return e.state.Load().(State)
}

func (e *Executor) transitionState(from, to State) bool {
	return e.state.CompareAndSwap(from, to)
}
