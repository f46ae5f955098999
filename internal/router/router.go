package router

import (
	"net/http"
	"time"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/internal/router/middleware"
	"github.com/josidbobo/IDConcordiumDEX/internal/usecase/user"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.n,
				"duration", time.Since(start),
			)
		})
	}
}

// wrap your mux with cors(mux) when starting the server
// http.ListenAndServe(":8080", Cors(mux))

func Cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			reqHdrs := r.Header.Get("Access-Control-Request-Headers")
			if reqHdrs == "" {
				reqHdrs = "Content-Type, Authorization"
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHdrs)

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if reqMethod == "" {
				reqMethod = "GET, POST, OPTIONS"
			}
			w.Header().Set("Access-Control-Allow-Methods", reqMethod)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bindMarket[T model.TokenID, A model.TokenAmount](serverRouter *http.ServeMux, market Market[T, A], tokenMaker *middleware.JWTMaker, logger log.Logger) {
	authmiddleware := middleware.AuthMiddleware(tokenMaker)
	logged := logging(logger)
	marketRouter := NewMarketRouter(market)
	serverRouter.Handle("POST /api/v1/market/add", logged(authmiddleware(http.HandlerFunc(marketRouter.Add))))
	serverRouter.Handle("POST /api/v1/market/transfer", logged(authmiddleware(http.HandlerFunc(marketRouter.Transfer))))
	serverRouter.Handle("POST /api/v1/market/transfer-cis2", logged(authmiddleware(http.HandlerFunc(marketRouter.TransferCIS2))))
	serverRouter.Handle("POST /api/v1/market/settle", logged(authmiddleware(http.HandlerFunc(marketRouter.Settle))))
	serverRouter.Handle("POST /api/v1/market/on-receive", logged(authmiddleware(http.HandlerFunc(marketRouter.OnReceive))))
	serverRouter.Handle("GET /api/v1/market/list", logged(http.HandlerFunc(marketRouter.List)))
	serverRouter.Handle("GET /api/v1/market/view", logged(http.HandlerFunc(marketRouter.View)))
	serverRouter.Handle("GET /api/v1/market/depth", logged(http.HandlerFunc(marketRouter.Depth)))
}

func bindUser(serverRouter *http.ServeMux, tokenMaker *middleware.JWTMaker, userUseCase user.UserUseCase, logger log.Logger) {
	authmiddleware := middleware.AuthMiddleware(tokenMaker)
	logged := logging(logger)
	userRouter := NewUserRouter(userUseCase, tokenMaker, logger)
	serverRouter.Handle("GET /api/v1/account", logged(authmiddleware(http.HandlerFunc(userRouter.GetUser))))
	serverRouter.Handle("POST /api/v1/account/deposit", logged(authmiddleware(http.HandlerFunc(userRouter.Deposit))))
	serverRouter.Handle("POST /api/v1/account/register", logged(http.HandlerFunc(userRouter.RegisterUser)))
	serverRouter.Handle("POST /api/v1/account/login", logged(http.HandlerFunc(userRouter.LoginUser)))
}

type BindRouterOpts[T model.TokenID, A model.TokenAmount] struct {
	ServerRouter *http.ServeMux
	Market       Market[T, A]
	TokenMaker   *middleware.JWTMaker
	UserUseCase  user.UserUseCase
	// Hub serves GET /ws when set.
	Hub    http.Handler
	Logger log.Logger
}

func BindRouter[T model.TokenID, A model.TokenAmount](opts BindRouterOpts[T, A]) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("module", "http")

	bindMarket(opts.ServerRouter, opts.Market, opts.TokenMaker, logger)
	if opts.UserUseCase != nil {
		bindUser(opts.ServerRouter, opts.TokenMaker, opts.UserUseCase, logger)
	}
	if opts.Hub != nil {
		opts.ServerRouter.Handle("GET /ws", opts.Hub)
	}

	opts.ServerRouter.Handle("GET /healthz", logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": 200,
			"health": "healthy",
		})
	})))
}
