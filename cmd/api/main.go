// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/account-api/internal/account"
	"github.com/yourusername/account-api/internal/auth"
	"github.com/yourusername/account-api/internal/config"
	"github.com/yourusername/account-api/internal/session"
	"github.com/yourusername/account-api/internal/store"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// アカウントストアへの接続（失敗した場合は起動しない）
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to account store: %v", err)
	}
	defer pool.Close()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to migrate account store: %v", err)
	}

	// セッションストアへの接続（失敗した場合は起動しない）
	redisClient, err := newRedisClient(ctx, cfg.SessionRedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to session store: %v", err)
	}
	defer redisClient.Close()

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, pool, redisClient)

	// サーバーの起動
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	// 処理中のリクエストの完了を待ってから終了する
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Print("Server stopped")
}

// newRedisClient は Redis クライアントを作成し、疎通確認まで行います。
func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "account-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, pool account.Pool, redisClient *redis.Client) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	repo := account.NewRepository(pool)
	hasher := auth.NewHasher(cfg.BcryptCost)
	authenticator := auth.NewAuthenticator(repo, hasher)

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	sessions := session.NewManager(session.NewRedisStore(redisClient), repo, sessionTTL)

	authHandler := auth.NewHandler(
		authenticator,
		sessions,
		int(sessionTTL.Seconds()),
		cfg.GinMode == gin.ReleaseMode,
	)
	accountHandler := account.NewHandler(repo, hasher, cfg.CursorBatchSize)

	api := router.Group("/api")
	{
		// 認証不要のルート
		api.POST("/register", accountHandler.Register)
		api.POST("/login", authHandler.Login)
		api.GET("/logout", authHandler.Logout)
		api.GET("/profile", authHandler.Profile)

		// 参照系は元の公開範囲に合わせて認証不要
		api.GET("/userslist", accountHandler.List)
		api.GET("/projection", accountHandler.Projection)
		api.GET("/cursor", accountHandler.Cursor)
		api.GET("/stats", accountHandler.Stats)

		// 変更系は一律で有効なセッションを要求する
		protected := api.Group("")
		protected.Use(auth.RequireLogin(sessions))
		{
			protected.POST("/insert-one", accountHandler.InsertOne)
			protected.POST("/insert-many", accountHandler.InsertMany)
			protected.PATCH("/update-one", accountHandler.UpdateOne)
			protected.PATCH("/update-many", accountHandler.UpdateMany)
			protected.PUT("/replace-one", accountHandler.ReplaceOne)
			protected.DELETE("/delete-one", accountHandler.DeleteOne)
			protected.DELETE("/delete-many", accountHandler.DeleteMany)
		}
	}
}
