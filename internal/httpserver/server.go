package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/handlers"
	"laikostar/internal/logging"
	"laikostar/internal/metrics"
	"laikostar/internal/middleware"

	"github.com/go-chi/chi"
)

type Server struct {
	Serv     *http.Server
	limiters []*middleware.RateLimiter
}

// Limits throttles every /api request by client IP and authenticated
// requests additionally by user. Nil fields disable that limiter.
type Limits struct {
	IP   *middleware.RateLimiter
	User *middleware.RateLimiter
}

// NewRouter wires every route onto handler.
func NewRouter(cfg *config.Config, handler *handlers.Server, limits Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.LoggingMiddleware(logging.Logg))

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if limits.IP != nil {
			r.Use(limits.IP.Handler)
		}
		r.Post("/signup", handler.Signup)
		r.Post("/authenticate", handler.Authenticate)
		r.Get("/plans", handler.GetPlans)
		r.Get("/tasks", handler.GetTasks)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(handler.Ledger))
			if limits.User != nil {
				r.Use(limits.User.Handler)
			}

			r.Get("/user", handler.GetUser)
			r.Put("/user", handler.UpdateUser)
			r.Post("/user/profile-picture", handler.UploadProfilePicture)
			r.Get("/user/parent", handler.GetParent)
			r.Get("/transactions", handler.GetTransactions)

			r.Post("/tasks/{taskID}/complete", handler.CompleteTask)
			r.Get("/task-transactions", handler.GetTaskTransactions)

			r.Post("/withdraw-balance", handler.WithdrawBalance)
			r.Get("/withdrawals", handler.GetWithdrawals)

			r.Get("/referrals", handler.GetReferrals)
			r.Put("/change-password", handler.ChangePassword)

			r.Post("/training-bonus/upload", handler.UploadTrainingBonus)
			r.Get("/training-bonus", handler.GetTrainingBonus)
			r.Post("/referral-payment/upload", handler.UploadReferralPayment)
			r.Get("/referral-payment", handler.GetReferralPayments)

			r.Post("/user-accounts", handler.AddAccount)
			r.Get("/user-accounts", handler.GetAccounts)
			r.Put("/user-accounts/{id}", handler.UpdateAccount)
			r.Delete("/user-accounts/{id}", handler.DeleteAccount)

			r.Get("/notifications", handler.GetNotifications)
			r.Put("/notifications/{id}", handler.UpdateNotification)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(cfg.AdminKey))
			r.Post("/tasks", handler.CreateTask)
			r.Post("/plans", handler.CreatePlan)
			r.Post("/payments/{id}/approve", handler.ApprovePayment)
			r.Post("/payments/{id}/reject", handler.RejectPayment)
			r.Get("/receipts/{folder}/{name}", handler.GetReceipt)
			r.Post("/withdrawals/{id}/approve", handler.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", handler.RejectWithdrawal)
			r.Post("/notifications", handler.CreateNotification)
			r.Get("/settings/withdrawals", handler.GetWithdrawalsSetting)
			r.Put("/settings/withdrawals", handler.SetWithdrawals)
		})
	})
	return r
}

func New(cfg *config.Config, handler *handlers.Server) (*Server, error) {
	var limits Limits
	if cfg.RateLimit > 0 {
		limits.IP = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst)
		limits.User = middleware.NewUserRateLimiter(cfg.RateLimit, cfg.RateLimitBurst)
	}

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      NewRouter(cfg, handler, limits),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srv := &Server{Serv: serv}
	for _, l := range []*middleware.RateLimiter{limits.IP, limits.User} {
		if l != nil {
			srv.limiters = append(srv.limiters, l)
		}
	}
	return srv, nil
}

func (s *Server) Start(ctx context.Context) {
	go func() {
		logging.Logg.Info("Starting server", "address", s.Serv.Addr)
		if err := s.Serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logg.Error("Server failed to start", "error", err)
			fmt.Println("Server failed to start:", err)
			os.Exit(1)
		}
	}()

	if len(s.limiters) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, l := range s.limiters {
					l.Cleanup(10 * time.Minute)
				}
			}
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Logg.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.Serv.Shutdown(shutdownCtx); err != nil {
		logging.Logg.Error("Server shutdown error", "error", err)
		return err
	}

	logging.Logg.Info("Server stopped")
	return nil
}
