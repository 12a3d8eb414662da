package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/llmgate/internal/crypto"
	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// Admitter counts in-flight requests per model across gateway replicas.
// Implemented by admission.SlotCounter.
type Admitter interface {
	Acquire(ctx context.Context, modelID string, capacity int) (bool, error)
	Release(ctx context.Context, modelID string) error
}

// Prober checks whether a backend on the given port is reachable. Injected
// so recovery is testable without live containers.
type Prober func(ctx context.Context, port int) error

// ContainerService tracks the model -> running backend mapping: routing port,
// per-restart credential material, sandbox UID, and parallel-slot capacity.
// Persisted secrets are the single source of truth; a gateway restart reloads
// them rather than minting new credentials.
type ContainerService struct {
	db        DB
	secretKey []byte
	uidStart  int
	uidEnd    int
	admitter  Admitter
	probe     Prober
}

func NewContainerService(db DB, secretKey []byte, uidStart, uidEnd int, admitter Admitter, probe Prober) *ContainerService {
	if probe == nil {
		probe = tcpProbe
	}
	return &ContainerService{
		db:        db,
		secretKey: secretKey,
		uidStart:  uidStart,
		uidEnd:    uidEnd,
		admitter:  admitter,
		probe:     probe,
	}
}

func tcpProbe(ctx context.Context, port int) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	return conn.Close()
}

// uidAllocQuery picks the smallest UID in the configured range not held by
// any live secret. Selection and insert are one statement; the unique index
// on uid is the backstop when two gateways race for the same value.
const uidAllocQuery = `
	INSERT INTO container_secrets (model_id, uid, api_key_enc, slots, stale, created_at)
	SELECT $1, u.uid, $2, $3, false, now()
	FROM generate_series($4::int, $5::int) AS u(uid)
	WHERE NOT EXISTS (SELECT 1 FROM container_secrets cs WHERE cs.uid = u.uid)
	ORDER BY u.uid
	LIMIT 1
	RETURNING uid, created_at`

// RegisterStart records a freshly started backend container for a model:
// allocates a sandbox UID, generates the API key the gateway will present to
// the backend, and stores the backend's advertised slot capacity. Returns the
// secret and the raw API key. Any previous secret for the model is replaced.
func (s *ContainerService) RegisterStart(ctx context.Context, modelID string, port, slots int) (*model.ContainerSecret, string, error) {
	rawKey := platform.NewSecret("lgc_")
	enc, err := crypto.Encrypt([]byte(rawKey), s.secretKey)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt container api key: %w", err)
	}

	// A restarted container gets fresh credentials; the old secret dies with
	// the old process.
	if _, err := s.db.Exec(ctx, `DELETE FROM container_secrets WHERE model_id = $1`, modelID); err != nil {
		return nil, "", fmt.Errorf("clear previous container secret: %w", err)
	}

	secret := &model.ContainerSecret{
		ModelID:   modelID,
		APIKeyEnc: enc,
		Slots:     slots,
	}

	// Two concurrent starts can elect the same smallest free UID; the unique
	// index rejects one, which retries against the updated view.
	const maxAllocAttempts = 3
	for attempt := 0; ; attempt++ {
		err = s.db.QueryRow(ctx, uidAllocQuery,
			modelID, enc, slots, s.uidStart, s.uidEnd,
		).Scan(&secret.UID, &secret.CreatedAt)
		if err == nil {
			break
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrUIDPoolExhausted
		}
		if isUniqueViolation(err) && attempt < maxAllocAttempts-1 {
			continue
		}
		return nil, "", fmt.Errorf("allocate container uid: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE models SET loaded = true, port = $1, updated_at = now() WHERE id = $2`, port, modelID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("mark model %s loaded: %w", modelID, err)
	}

	return secret, rawKey, nil
}

// RegisterStop retires a model's container secret and clears its loaded
// state. Stopping an already-stopped model is a no-op.
func (s *ContainerService) RegisterStop(ctx context.Context, modelID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM container_secrets WHERE model_id = $1`, modelID); err != nil {
		return fmt.Errorf("delete container secret: %w", err)
	}
	_, err := s.db.Exec(ctx,
		`UPDATE models SET loaded = false, port = NULL, updated_at = now() WHERE id = $1`, modelID,
	)
	if err != nil {
		return fmt.Errorf("mark model %s unloaded: %w", modelID, err)
	}
	return nil
}

const containerSecretColumns = `model_id, uid, api_key_enc, slots, stale, created_at`

func scanContainerSecret(row interface{ Scan(dest ...any) error }) (model.ContainerSecret, error) {
	var cs model.ContainerSecret
	err := row.Scan(&cs.ModelID, &cs.UID, &cs.APIKeyEnc, &cs.Slots, &cs.Stale, &cs.CreatedAt)
	return cs, err
}

// List returns all persisted container secrets.
func (s *ContainerService) List(ctx context.Context) ([]model.ContainerSecret, error) {
	rows, err := s.db.Query(ctx, `SELECT `+containerSecretColumns+` FROM container_secrets ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list container secrets: %w", err)
	}
	defer rows.Close()

	var secrets []model.ContainerSecret
	for rows.Next() {
		cs, err := scanContainerSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan container secret: %w", err)
		}
		secrets = append(secrets, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate container secrets: %w", err)
	}
	return secrets, nil
}

// Live returns the non-stale secret for a model plus the decrypted API key.
func (s *ContainerService) Live(ctx context.Context, modelID string) (*model.ContainerSecret, string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+containerSecretColumns+` FROM container_secrets WHERE model_id = $1 AND stale = false`, modelID,
	)
	cs, err := scanContainerSecret(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get container secret for model %s: %w", modelID, err)
	}

	rawKey, err := crypto.Decrypt(cs.APIKeyEnc, s.secretKey)
	if err != nil {
		return nil, "", fmt.Errorf("decrypt container api key for model %s: %w", modelID, err)
	}
	return &cs, string(rawKey), nil
}

// Recover reloads persisted container secrets after a gateway restart and
// probes each referenced backend. Unreachable backends are marked stale for
// out-of-band reconciliation; recovery itself never fails startup over a
// missing container. Returns the number of live and stale backends.
func (s *ContainerService) Recover(ctx context.Context) (live, stale int, err error) {
	rows, err := s.db.Query(ctx,
		`SELECT cs.model_id, m.port FROM container_secrets cs
		 JOIN models m ON m.id = cs.model_id
		 WHERE cs.stale = false`,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("load container secrets: %w", err)
	}
	defer rows.Close()

	type target struct {
		modelID string
		port    *int
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.modelID, &t.port); err != nil {
			return 0, 0, fmt.Errorf("scan recovery target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate recovery targets: %w", err)
	}

	staleIDs := make([]string, 0)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	results := make([]bool, len(targets))
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if t.port == nil {
				return nil
			}
			probeCtx, cancel := context.WithTimeout(gctx, 3*time.Second)
			defer cancel()
			results[i] = s.probe(probeCtx, *t.port) == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	for i, t := range targets {
		if results[i] {
			live++
			continue
		}
		staleIDs = append(staleIDs, t.modelID)
	}

	for _, id := range staleIDs {
		if _, err := s.db.Exec(ctx,
			`UPDATE container_secrets SET stale = true WHERE model_id = $1`, id,
		); err != nil {
			return live, stale, fmt.Errorf("mark container secret stale for model %s: %w", id, err)
		}
		stale++
	}

	return live, stale, nil
}

// AdmitRequest charges one in-flight slot for the model. Requests beyond the
// backend's registered capacity fail with ErrBackendSaturated. Every admitted
// request must be paired with ReleaseRequest.
func (s *ContainerService) AdmitRequest(ctx context.Context, modelID string) error {
	var slots int
	err := s.db.QueryRow(ctx,
		`SELECT slots FROM container_secrets WHERE model_id = $1 AND stale = false`, modelID,
	).Scan(&slots)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoEligibleModel
	}
	if err != nil {
		return fmt.Errorf("get slot capacity for model %s: %w", modelID, err)
	}

	ok, err := s.admitter.Acquire(ctx, modelID, slots)
	if err != nil {
		return fmt.Errorf("admit request for model %s: %w", modelID, err)
	}
	if !ok {
		return ErrBackendSaturated
	}
	return nil
}

// ReleaseRequest returns an in-flight slot.
func (s *ContainerService) ReleaseRequest(ctx context.Context, modelID string) error {
	if err := s.admitter.Release(ctx, modelID); err != nil {
		return fmt.Errorf("release request for model %s: %w", modelID, err)
	}
	return nil
}
