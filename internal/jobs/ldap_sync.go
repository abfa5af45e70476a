// ldap_sync.go implements the LDAPSyncJob background job, which periodically
// pulls user entries from the upstream LDAP directory and upserts them into the
// users table, keyed by distinguished name. Synced users appear in the team
// listing immediately; pinning one provisions its contact card on demand.
// The job is a no-op when auth.ldap.enabled is false, so it is always safe to
// start regardless of deployment environment.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/team-directory/team-directory/internal/config"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/telemetry"
)

// ldapConn is the subset of *ldap.Conn the sync job uses. Tests substitute a
// fake; production code dials a real connection per cycle.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAPSyncJob periodically mirrors directory accounts into the users table.
type LDAPSyncJob struct {
	userRepo *repositories.UserRepository
	cfg      *config.LDAPConfig
	dial     func(url string) (ldapConn, error)
	stopChan chan struct{}
}

// NewLDAPSyncJob creates a new LDAPSyncJob.
func NewLDAPSyncJob(userRepo *repositories.UserRepository, cfg *config.LDAPConfig) *LDAPSyncJob {
	return &LDAPSyncJob{
		userRepo: userRepo,
		cfg:      cfg,
		dial: func(url string) (ldapConn, error) {
			return ldap.DialURL(url)
		},
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sync loop. It runs an initial sync immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop() is called.
func (j *LDAPSyncJob) Start(ctx context.Context) {
	if !j.cfg.Enabled {
		slog.Info("ldap sync: disabled (auth.ldap.enabled=false)")
		return
	}

	interval := j.cfg.SyncInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("ldap sync started", "interval", interval, "base_dn", j.cfg.BaseDN)

	// Run once immediately on startup
	j.runSync(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSync(ctx)
		case <-j.stopChan:
			slog.Info("ldap sync stopped")
			return
		case <-ctx.Done():
			slog.Info("ldap sync context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *LDAPSyncJob) Stop() {
	close(j.stopChan)
}

// runSync executes one complete sync cycle and records its metrics.
func (j *LDAPSyncJob) runSync(ctx context.Context) {
	start := time.Now()

	synced, err := j.syncOnce(ctx)
	telemetry.LDAPSyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.LDAPSyncErrorsTotal.Inc()
		slog.Error("ldap sync cycle failed", "error", err)
		return
	}

	telemetry.LDAPUsersSynced.Set(float64(synced))
	slog.Info("ldap sync cycle complete", "users", synced, "duration", time.Since(start))
}

// syncOnce dials the directory, searches the configured subtree, and upserts
// every entry that carries a mail attribute. Entries without mail are skipped
// because email is the stable join key for login and display.
func (j *LDAPSyncJob) syncOnce(ctx context.Context) (int, error) {
	conn, err := j.dial(j.cfg.URL)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", j.cfg.URL, err)
	}
	defer conn.Close() //nolint:errcheck

	if j.cfg.BindDN != "" {
		if err := conn.Bind(j.cfg.BindDN, j.cfg.BindPassword); err != nil {
			return 0, fmt.Errorf("bind as %s: %w", j.cfg.BindDN, err)
		}
	}

	filter := j.cfg.Filter
	if filter == "" {
		filter = "(objectClass=inetOrgPerson)"
	}

	req := ldap.NewSearchRequest(
		j.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"mail", "givenName", "middleName", "sn"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return 0, fmt.Errorf("search %s: %w", j.cfg.BaseDN, err)
	}

	synced := 0
	for _, entry := range result.Entries {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}

		email := entry.GetAttributeValue("mail")
		if email == "" {
			slog.Debug("ldap sync: skipping entry without mail", "dn", entry.DN)
			continue
		}

		_, err := j.userRepo.UpsertFromLDAP(ctx, entry.DN,
			email,
			entry.GetAttributeValue("givenName"),
			entry.GetAttributeValue("middleName"),
			entry.GetAttributeValue("sn"),
		)
		if err != nil {
			return synced, fmt.Errorf("upsert %s: %w", entry.DN, err)
		}
		synced++
	}

	return synced, nil
}
