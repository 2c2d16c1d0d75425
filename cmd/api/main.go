package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/apperr"
	"qrattend/internal/auth"
	"qrattend/internal/batch"
	"qrattend/internal/checkin"
	"qrattend/internal/config"
	"qrattend/internal/dateutil"
	"qrattend/internal/enrollment"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/identity"
	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/qrimg"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/token"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "qrattend:checkins")
	}

	batches := batch.NewService(batch.NewRepository(db.Client))
	enrollments := enrollment.NewService(enrollment.NewRepository(db.Client), batches)
	tokens := token.NewIssuer(token.NewRepository(db.Client), redisClient.Client, cfg.PublicBaseURL)
	marks := ledger.NewService(ledger.NewRepository(db.Client))
	authRepo := auth.NewRepository(db.Client)

	if cfg.GoogleClientID == "" {
		log.Println("warning: GOOGLE_CLIENT_ID not set, sign-in will reject every credential")
	}
	verifier := identity.NewGoogleVerifier(cfg.GoogleClientID)
	orch := checkin.New(verifier, enrollments, tokens, marks)

	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil && db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Sign-in: verify the Google credential server-side and issue session
	// tokens carrying the verified identity. Client-asserted identity objects
	// are never accepted.
	r.POST("/v1/auth/google", func(c *gin.Context) {
		var req struct {
			IDToken string `json:"id_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ident, err := verifier.Verify(c.Request.Context(), req.IDToken)
		if err != nil {
			writeErr(c, err)
			return
		}

		student, err := enrollments.RegisterIdentity(c.Request.Context(), ident)
		if err != nil {
			writeErr(c, err)
			return
		}

		pair, err := auth.Issue(ident, "student", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = authRepo.SaveRefreshToken(c.Request.Context(), ident.SubjectID, pair.RefreshToken, pair.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
			"student":       student,
		})
	})

	// Batch registry (instructor surface).
	r.POST("/v1/batches", func(c *gin.Context) {
		var req struct {
			Name        string `json:"name"`
			Institution string `json:"institution" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		b, err := batches.Create(c.Request.Context(), req.Name, req.Institution)
		if err != nil {
			writeErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"batch":          b,
			"enrollment_url": tokens.EnrollmentURL(b.ID),
		})
	})

	r.GET("/v1/batches", func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"
		list, err := batches.List(c.Request.Context(), c.Query("institution"), activeOnly)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": list})
	})

	r.GET("/v1/batches/:id", func(c *gin.Context) {
		b, err := batches.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"batch":          b,
			"enrollment_url": tokens.EnrollmentURL(b.ID),
		})
	})

	// Deactivation only; batches are never deleted.
	r.DELETE("/v1/batches/:id", func(c *gin.Context) {
		if err := batches.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deactivated": true})
	})

	r.GET("/v1/batches/:id/report", func(c *gin.Context) {
		b, err := batches.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		from := c.DefaultQuery("from", dateutil.Format(time.Now().AddDate(0, 0, -7)))
		to := c.DefaultQuery("to", dateutil.Today())
		rows, err := marks.Report(c.Request.Context(), b.ID, from, to)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batch": b, "records": rows})
	})

	r.GET("/v1/batches/:id/enroll-qr", func(c *gin.Context) {
		b, err := batches.GetActive(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		png, err := qrimg.PNG(tokens.EnrollmentURL(b.ID), qrSize(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	// Daily token issuance (instructor surface). Re-requesting the same day
	// returns the existing token so a refreshed QR display never churns links.
	r.GET("/v1/token", func(c *gin.Context) {
		b, err := batches.GetActive(c.Request.Context(), c.Query("batch_id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		day := c.DefaultQuery("date", dateutil.Today())
		t, existed, err := tokens.Current(c.Request.Context(), b.ID, day)
		if err != nil {
			writeErr(c, err)
			return
		}
		if !existed {
			metrics.TokensMinted.Inc()
		}
		c.JSON(http.StatusOK, gin.H{
			"token":           t.Value,
			"issued_at":       t.IssuedAt,
			"already_existed": existed,
			"attendance_url":  tokens.AttendanceURL(b.ID, t.Value),
		})
	})

	r.GET("/v1/token/qr", func(c *gin.Context) {
		b, err := batches.GetActive(c.Request.Context(), c.Query("batch_id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		day := c.DefaultQuery("date", dateutil.Today())
		t, existed, err := tokens.Current(c.Request.Context(), b.ID, day)
		if err != nil {
			writeErr(c, err)
			return
		}
		if !existed {
			metrics.TokensMinted.Inc()
		}
		png, err := qrimg.PNG(tokens.AttendanceURL(b.ID, t.Value), qrSize(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	// Student surface: identity always comes from the verified session token.
	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/enroll", func(c *gin.Context) {
		var req struct {
			BatchID string `json:"batch_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)

		enr, created, err := enrollments.Enroll(c.Request.Context(), claims.Identity(), req.BatchID)
		if err != nil {
			writeErr(c, err)
			return
		}
		if created {
			metrics.EnrollmentsCreated.Inc()
		}

		c.JSON(http.StatusOK, gin.H{
			"student_id":       enr.StudentID,
			"batch_id":         enr.BatchID,
			"enrolled_at":      enr.EnrolledAt,
			"already_enrolled": !created,
		})
	})

	authGroup.POST("/checkins", func(c *gin.Context) {
		var req struct {
			BatchID string `json:"batch_id" binding:"required"`
			Token   string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)

		res, err := orch.Attempt(c.Request.Context(), claims.Subject, req.BatchID, req.Token)
		if err != nil {
			metrics.CheckinsTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
			writeErr(c, err)
			return
		}
		metrics.CheckinsTotal.WithLabelValues(string(res.Status)).Inc()

		if res.Status == checkin.StatusMarked {
			if err := q.Publish(ctx, queue.Message{Type: "checkin", Body: []byte(res.Record.ID)}); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": res.Status, "timestamp": res.MarkedAt})
	})

	authGroup.GET("/history", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		limit := 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		recs, err := marks.History(c.Request.Context(), claims.Subject, c.Query("batch_id"), limit)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// writeErr renders a taxonomy error with its distinct status and message.
func writeErr(c *gin.Context, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": e.Message, "code": e.Code})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": apperr.CodeTransient})
}

func qrSize(c *gin.Context) int {
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return 0
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
