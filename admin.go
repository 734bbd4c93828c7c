// admin.go - privacy-conscious statistics and admin pages
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	retentionMonths = 12
	adminCookie     = "admin_token"
)

// Privacy-conscious visitor record
type VisitorMetric struct {
	ID        int       `json:"id"`
	HashedIP  string    `json:"hashed_ip"` // Hashed instead of raw IP for privacy
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type ProjectStat struct {
	ItemID string `json:"item_id"`
	Views  int64  `json:"views"`
}

type AdminStats struct {
	TotalVisitors        int64            `json:"total_visitors"`
	UniqueVisitors       int64            `json:"unique_visitors"`
	VisitorsToday        int64            `json:"visitors_today"`
	VisitorsThisWeek     int64            `json:"visitors_this_week"`
	TotalProjectViews    int64            `json:"total_project_views"`
	TotalSubmissions     int64            `json:"total_submissions"`
	TopProjects          []ProjectStat    `json:"top_projects"`
	SubmissionsByOutcome map[string]int64 `json:"submissions_by_outcome"`
	RecentVisitors       []VisitorMetric  `json:"recent_visitors"`
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Tracker records page views, project views and contact outcomes. Raw IP
// addresses never reach the database.
type Tracker struct {
	db     *DB
	salt   string
	logger *zap.Logger
}

func NewTracker(db *DB, logger *zap.Logger) (*Tracker, error) {
	salt, err := generateToken()
	if err != nil {
		return nil, err
	}
	return &Tracker{db: db, salt: salt, logger: logger}, nil
}

// HashIP hashes an address with the per-process salt (consistent per IP).
func (t *Tracker) HashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + t.salt))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

func untrackedPath(path string) bool {
	for _, prefix := range []string{"/static/", "/images/", "/admin/", "/favicon", "/privacy", "/fragments/", "/modal/", "/work/", "/healthz"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware records page views in the background. Assets, fragments, admin
// pages and requests carrying DNT are skipped.
func (t *Tracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || untrackedPath(path) || c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}

		hashed := t.HashIP(c.ClientIP())
		userAgent := c.GetHeader("User-Agent")
		go t.recordVisit(hashed, userAgent, path)
		c.Next()
	}
}

func (t *Tracker) recordVisit(hashedIP, userAgent, path string) {
	_, err := t.db.Exec(`
		INSERT INTO visitors (hashed_ip, user_agent, path)
		VALUES (?, ?, ?)
	`, hashedIP, userAgent, path)
	if err != nil {
		t.logger.Error("error recording visitor", zap.Error(err))
	}
}

// RecordProjectView counts one modal open of itemID.
func (t *Tracker) RecordProjectView(ctx context.Context, ip, itemID string) error {
	_, err := t.db.ExecContext(ctx, `INSERT INTO project_views (item_id, hashed_ip) VALUES (?, ?)`, itemID, t.HashIP(ip))
	if err != nil {
		return fmt.Errorf("record project view: %w", err)
	}
	return nil
}

// RecordSubmission stores the outcome of a contact form submission.
func (t *Tracker) RecordSubmission(ctx context.Context, visitor string, form ContactForm, outcome Outcome) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO contact_submissions (hashed_ip, name, email, outcome)
		VALUES (?, ?, ?, ?)
	`, visitor, strings.TrimSpace(form.Name), strings.TrimSpace(form.Email), string(outcome))
	if err != nil {
		return fmt.Errorf("record contact submission: %w", err)
	}
	return nil
}

// Cleanup removes records older than the retention window.
func (t *Tracker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := fmt.Sprintf("-%d months", retentionMonths)
	var total int64
	for _, table := range []string{"visitors", "project_views", "contact_submissions"} {
		result, err := t.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < datetime('now', ?)`, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	if total > 0 {
		t.logger.Info("privacy cleanup removed old records", zap.Int64("rows", total), zap.Int("months", retentionMonths))
	}
	return total, nil
}

// Stats gathers the dashboard numbers.
func (t *Tracker) Stats(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{SubmissionsByOutcome: map[string]int64{}}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM visitors", &stats.TotalVisitors},
		{"SELECT COUNT(DISTINCT hashed_ip) FROM visitors", &stats.UniqueVisitors},
		{"SELECT COUNT(*) FROM visitors WHERE DATE(timestamp) = DATE('now')", &stats.VisitorsToday},
		{"SELECT COUNT(*) FROM visitors WHERE timestamp >= datetime('now', '-7 days')", &stats.VisitorsThisWeek},
		{"SELECT COUNT(*) FROM project_views", &stats.TotalProjectViews},
		{"SELECT COUNT(*) FROM contact_submissions", &stats.TotalSubmissions},
	}
	for _, c := range counts {
		if err := t.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("query stats: %w", err)
		}
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT item_id, COUNT(*) AS views
		FROM project_views
		GROUP BY item_id
		ORDER BY views DESC, item_id
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("query top projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ProjectStat
		if err := rows.Scan(&p.ItemID, &p.Views); err != nil {
			continue
		}
		stats.TopProjects = append(stats.TopProjects, p)
	}

	outcomes, err := t.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM contact_submissions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer outcomes.Close()
	for outcomes.Next() {
		var outcome string
		var n int64
		if err := outcomes.Scan(&outcome, &n); err != nil {
			continue
		}
		stats.SubmissionsByOutcome[outcome] = n
	}

	stats.RecentVisitors, err = t.RecentVisitors(ctx, 50)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (t *Tracker) RecentVisitors(ctx context.Context, limit int) ([]VisitorMetric, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, hashed_ip, COALESCE(user_agent, ''), COALESCE(path, ''), timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query visitors: %w", err)
	}
	defer rows.Close()

	var visitors []VisitorMetric
	for rows.Next() {
		var v VisitorMetric
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &v.Timestamp); err != nil {
			continue
		}
		visitors = append(visitors, v)
	}
	return visitors, nil
}

// DeleteProjectViews removes every recorded view of itemID.
func (t *Tracker) DeleteProjectViews(ctx context.Context, itemID string) (int64, error) {
	result, err := t.db.ExecContext(ctx, "DELETE FROM project_views WHERE item_id = ?", itemID)
	if err != nil {
		return 0, fmt.Errorf("delete project views: %w", err)
	}
	return result.RowsAffected()
}

var errAdminDisabled = errors.New("admin login disabled: set ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")

// Admin serves the dashboard behind a per-process session token.
type Admin struct {
	cfg          AdminConfig
	token        string
	tracker      *Tracker
	store        *Store
	contactEmail string
	logger       *zap.Logger
}

func NewAdmin(cfg AdminConfig, tracker *Tracker, store *Store, contactEmail string, logger *zap.Logger) (*Admin, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		if gin.Mode() == gin.DebugMode {
			cfg.Password = "admin123"
			logger.Warn("using default admin password; set ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")
		} else {
			logger.Warn(errAdminDisabled.Error())
		}
	}
	logger.Info("admin access available at /admin/login")
	return &Admin{cfg: cfg, token: token, tracker: tracker, store: store, contactEmail: contactEmail, logger: logger}, nil
}

func (a *Admin) checkCredentials(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) != 1 {
		return false
	}
	if a.cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(password)) == nil
	}
	if a.cfg.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
}

// AuthMiddleware redirects requests without a valid admin cookie to the
// login page.
func (a *Admin) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the privacy page and every admin route.
func (a *Admin) RegisterRoutes(r *gin.Engine) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":           "Privacy Policy",
			"contactEmail":    a.contactEmail,
			"retentionMonths": retentionMonths,
		})
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		visitor := a.tracker.HashIP(c.ClientIP())
		if a.checkCredentials(c.PostForm("username"), c.PostForm("password")) {
			c.SetCookie(adminCookie, a.token, 3600*24, "/admin", "", c.Request.TLS != nil, true)
			a.logger.Info("admin login successful", zap.String("visitor", visitor))
			c.Redirect(http.StatusFound, "/admin/dashboard")
			return
		}
		a.logger.Warn("failed admin login attempt", zap.String("visitor", visitor))
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"error": "Invalid credentials",
		})
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", c.Request.TLS != nil, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(a.AuthMiddleware())

	adminGroup.GET("/dashboard", func(c *gin.Context) {
		stats, err := a.tracker.Stats(c.Request.Context())
		if err != nil {
			a.logger.Error("error loading admin stats", zap.Error(err))
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}
		var loadedAt any
		if t := a.store.LoadedAt(); !t.IsZero() {
			loadedAt = t
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"stats":     stats,
			"itemCount": len(a.store.Items()),
			"loadedAt":  loadedAt,
		})
	})

	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := a.tracker.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.GET("/visitors", func(c *gin.Context) {
		visitors, err := a.tracker.RecentVisitors(c.Request.Context(), 200)
		if err != nil {
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load visitors",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-visitors.html", gin.H{
			"visitors": visitors,
		})
	})

	adminGroup.POST("/reload", func(c *gin.Context) {
		if err := a.store.Reload(c.Request.Context()); err != nil {
			c.String(http.StatusBadGateway, "Reload failed: %v", err)
			return
		}
		c.String(http.StatusOK, "Loaded %d items", len(a.store.Items()))
	})

	adminGroup.DELETE("/project-views/:id", func(c *gin.Context) {
		itemID := c.Param("id")
		n, err := a.tracker.DeleteProjectViews(c.Request.Context(), itemID)
		if err != nil {
			a.logger.Error("error deleting project views", zap.String("item", itemID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project views"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "No views recorded for project"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Project views deleted", "deleted": n})
	})

	adminGroup.POST("/privacy/cleanup", func(c *gin.Context) {
		n, err := a.tracker.Cleanup(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup finished", "deleted": n})
	})

	adminGroup.GET("/export/stats", func(c *gin.Context) {
		stats, err := a.tracker.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=portfolio-stats.json")
		c.JSON(http.StatusOK, stats)
	})
}
