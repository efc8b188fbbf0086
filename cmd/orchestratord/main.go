// Command orchestratord is the single external-facing process: it wires
// the core components (Store, Dispatcher, Executor, Scheduler, Notifier,
// Archive) and mounts the Public Facade behind gin, collapsing the
// teacher's SERVICE_TYPE-dispatched api/registry/executor split into one
// service since this spec has no registry/executor process boundary.
package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/archive"
	"github.com/jsprague84/svrctlrs-sub002/internal/config"
	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/dispatch"
	"github.com/jsprague84/svrctlrs-sub002/internal/executor"
	"github.com/jsprague84/svrctlrs-sub002/internal/facade"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/notify"
	"github.com/jsprague84/svrctlrs-sub002/internal/ratelimit"
	"github.com/jsprague84/svrctlrs-sub002/internal/scheduler"
	"github.com/jsprague84/svrctlrs-sub002/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Println("starting orchestratord")

	ctx := context.Background()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer st.Close()

	resolver := credential.Passthrough{}
	dispatcher := dispatch.New(cfg.SSHKeyDir)

	archiver := buildArchiver(ctx, st)

	// notify.New takes an interface parameter; passing a nil *ratelimit.Counter
	// through it would wrap a non-nil interface around a nil pointer, so the
	// disabled case passes a literal nil instead of a typed nil variable.
	var notifier *notify.Notifier
	if cfg.RedisAddr != "" {
		counter, err := ratelimit.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("warning: notification throttle disabled (%v)", err)
			notifier = notify.New(st, nil)
		} else {
			defer counter.Close()
			notifier = notify.New(st, counter)
		}
	} else {
		notifier = notify.New(st, nil)
	}

	exec := executor.New(st, dispatcher, resolver, notifier, archiver, cfg.MaxConcurrentJobs, time.Duration(cfg.SubmitTimeoutSeconds)*time.Second)

	sched := scheduler.New(st, exec, 5*time.Second)
	sched.Start(ctx)
	defer sched.Stop()

	f := facade.New(st, exec, sched, dispatcher, resolver)

	router := newRouter(f, cfg.AuthToken)
	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// buildArchiver reads storage.backend/storage.inline_output_max_bytes from
// Settings (nothing seeds these rows; an absent key takes the in-code
// default passed to settingOrDefault/settingIntOrDefault) and falls back to a
// local filesystem backend if anything about the configured backend fails
// to construct, so a misconfigured cloud backend never blocks startup.
func buildArchiver(ctx context.Context, st *store.Store) *archive.Archiver {
	backendName := settingOrDefault(ctx, st, "storage.backend", "local")
	inlineMax := settingIntOrDefault(ctx, st, "storage.inline_output_max_bytes", 65536)

	backend, err := archive.NewBackend(ctx, archive.Config{
		Backend:        backendName,
		LocalDir:       settingOrDefault(ctx, st, "storage.local_dir", "./data/archive"),
		S3Bucket:       settingOrDefault(ctx, st, "storage.s3_bucket", ""),
		S3Region:       settingOrDefault(ctx, st, "storage.s3_region", ""),
		AzureAccount:   settingOrDefault(ctx, st, "storage.azure_account", ""),
		AzureAccessKey: settingOrDefault(ctx, st, "storage.azure_access_key", ""),
		AzureContainer: settingOrDefault(ctx, st, "storage.azure_container", ""),
		GCSBucket:      settingOrDefault(ctx, st, "storage.gcs_bucket", ""),
	})
	if err != nil {
		log.Printf("warning: output archive backend %q unavailable (%v), falling back to local", backendName, err)
		backend = archive.NewLocalBackend("./data/archive")
	}
	return archive.New(backend, inlineMax)
}

func settingOrDefault(ctx context.Context, st *store.Store, key, fallback string) string {
	s, err := st.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	return s.Value
}

func settingIntOrDefault(ctx context.Context, st *store.Store, key string, fallback int) int {
	s, err := st.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(s.Value)
	if err != nil {
		return fallback
	}
	return n
}

// newRouter mounts handlers for a subset of Facade methods (server
// list/create/test-connection/detect-capabilities, job template list, run
// get/trigger/cancel, schedule reload) plus /healthz; the other Facade
// methods have no route. All routes sit behind a single
// shared-secret bearer check, the simplified single-secret descendant of
// the teacher's internal/auth HS256 validation (no PAT/OIDC three-way
// branch — authorization beyond "has a valid token" is out of scope).
func newRouter(f *facade.Facade, authToken string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	if authToken != "" {
		r.Use(bearerAuth(authToken))
	}

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	servers := r.Group("/servers")
	{
		servers.GET("", func(c *gin.Context) {
			list, err := f.ListServers(c.Request.Context(), false)
			respond(c, list, err)
		})
		servers.POST("", func(c *gin.Context) {
			var srv model.Server
			if !bindJSON(c, &srv) {
				return
			}
			created, err := f.CreateServer(c.Request.Context(), &srv)
			respond(c, created, err)
		})
		servers.POST("/:id/test-connection", func(c *gin.Context) {
			id, ok := pathID(c)
			if !ok {
				return
			}
			result, err := f.TestServerConnection(c.Request.Context(), id)
			respond(c, result, err)
		})
		servers.POST("/:id/detect-capabilities", func(c *gin.Context) {
			id, ok := pathID(c)
			if !ok {
				return
			}
			caps, err := f.DetectServerCapabilities(c.Request.Context(), id)
			respond(c, caps, err)
		})
	}

	templates := r.Group("/job-templates")
	{
		templates.GET("", func(c *gin.Context) {
			list, err := f.ListJobTemplates(c.Request.Context())
			respond(c, list, err)
		})
	}

	runs := r.Group("/runs")
	{
		runs.GET("/:id", func(c *gin.Context) {
			id, ok := pathID(c)
			if !ok {
				return
			}
			run, err := f.GetJobRun(c.Request.Context(), id)
			respond(c, run, err)
		})
		runs.POST("/trigger", func(c *gin.Context) {
			var body struct {
				JobTemplateID int64             `json:"jobTemplateId"`
				ServerID      int64             `json:"serverId"`
				Overrides     map[string]string `json:"overrides"`
			}
			if !bindJSON(c, &body) {
				return
			}
			runID, err := f.TriggerManualRun(c.Request.Context(), body.JobTemplateID, body.ServerID, body.Overrides)
			respond(c, gin.H{"jobRunId": runID}, err)
		})
		runs.POST("/:id/cancel", func(c *gin.Context) {
			id, ok := pathID(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, gin.H{"cancelled": f.CancelRun(id)})
		})
	}

	r.POST("/schedules/reload", func(c *gin.Context) {
		respond(c, gin.H{"reloaded": true}, f.ReloadSchedules(c.Request.Context()))
	})

	return r
}

func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := header[len(prefix):]
		_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return []byte(secret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respond(c *gin.Context, payload any, err error) {
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payload)
}
