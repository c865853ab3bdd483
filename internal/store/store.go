package store

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cctv/internal/domain"
)

// ErrNotFound indicates an absent camera or preference row.
var ErrNotFound = errors.New("not found")

// Camera is one configured video origin row.
// Params: identity, transport kind, connection target, policy, and ordering.
// Returns: persisted camera row mapped by gorm.
type Camera struct {
	ID           int    `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	URL          string `gorm:"not null"`
	Kind         string `gorm:"column:type;default:rtsp"`
	RecordPolicy string `gorm:"default:manual"`
	SortOrder    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Preference is the single-row application preferences table.
// Params: recordings path, theme, codec, and global recording policy.
// Returns: persisted preferences mapped by gorm.
type Preference struct {
	ID                  int    `gorm:"primaryKey"`
	RecordingsDir       string `gorm:"default:recordings"`
	Theme               string `gorm:"default:dark"`
	Codec               string `gorm:"default:mp4"`
	RecordPolicyDefault string `gorm:"default:manual"`
}

// AlertRecord is one append-only ledger row for a delivery attempt.
// Params: timestamp, source, zone, channel kind, artifact path, and outcome.
// Returns: persisted ledger row; never updated or deleted by the core.
type AlertRecord struct {
	ID        int    `gorm:"primaryKey"`
	Timestamp string `gorm:"not null"`
	CameraID  int
	ZoneName  string
	Kind      string
	ImagePath string
	Status    string
}

// User is one local credential row.
// Params: username and bcrypt password hash.
// Returns: persisted user row for the local login check.
type User struct {
	ID       int    `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null"`
}

// Preferences is the value view of the preference row handed to the core.
// Params: resolved preference fields with defaults applied.
// Returns: read-only preferences snapshot.
type Preferences struct {
	RecordingsDir       string
	Theme               string
	Codec               string
	RecordPolicyDefault domain.RecordPolicy
}

// Store wraps the sqlite-backed persistence collaborator.
// Params: gorm handle shared by concurrent workers; every write is a single
// statement so no cross-worker transactions are needed.
// Returns: camera list, policy, preference, and ledger operations.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database and migrates the schema.
// Params: sqlite file path or DSN.
// Returns: initialized store or open/migration error.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Camera{}, &Preference{}, &AlertRecord{}, &User{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
// Params: none.
// Returns: close error from the sql pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListSources returns all configured sources in display order.
// Params: none.
// Returns: sources ordered by sort order then id, or query error.
func (s *Store) ListSources() ([]domain.Source, error) {
	var cameras []Camera
	if err := s.db.Order("sort_order ASC, id ASC").Find(&cameras).Error; err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	sources := make([]domain.Source, 0, len(cameras))
	for _, cam := range cameras {
		kind, err := domain.ParseSourceKind(cam.Kind)
		if err != nil {
			return nil, fmt.Errorf("camera %d: %w", cam.ID, err)
		}
		sources = append(sources, domain.Source{
			ID:        cam.ID,
			Name:      cam.Name,
			Kind:      kind,
			Target:    cam.URL,
			Policy:    domain.ParseRecordPolicy(cam.RecordPolicy),
			SortOrder: cam.SortOrder,
		})
	}
	return sources, nil
}

// AddCamera inserts one camera row at the end of the display order.
// Params: name, connection target, and transport kind.
// Returns: new camera id or insert error.
func (s *Store) AddCamera(name, url string, kind domain.SourceKind) (int, error) {
	var maxOrder int
	s.db.Model(&Camera{}).Select("COALESCE(MAX(sort_order), 0)").Scan(&maxOrder)
	cam := Camera{
		Name:         name,
		URL:          url,
		Kind:         string(kind),
		RecordPolicy: string(domain.PolicyManual),
		SortOrder:    maxOrder + 1,
	}
	if err := s.db.Create(&cam).Error; err != nil {
		return 0, fmt.Errorf("add camera: %w", err)
	}
	return cam.ID, nil
}

// GetPolicy returns the recording policy stored for one camera.
// Params: camera id.
// Returns: camera policy or ErrNotFound.
func (s *Store) GetPolicy(id int) (domain.RecordPolicy, error) {
	var cam Camera
	if err := s.db.First(&cam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get policy %d: %w", id, err)
	}
	return domain.ParseRecordPolicy(cam.RecordPolicy), nil
}

// UpdateCameraPolicy stores a new recording policy for one camera.
// Params: camera id and policy value.
// Returns: update error.
func (s *Store) UpdateCameraPolicy(id int, policy domain.RecordPolicy) error {
	result := s.db.Model(&Camera{}).Where("id = ?", id).
		Update("record_policy", string(policy))
	if result.Error != nil {
		return fmt.Errorf("update policy %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetGlobalPolicy returns the global default recording policy.
// Params: none.
// Returns: preference policy, defaulting to manual when unset.
func (s *Store) GetGlobalPolicy() (domain.RecordPolicy, error) {
	prefs, err := s.GetPreferences()
	if err != nil {
		return "", err
	}
	return prefs.RecordPolicyDefault, nil
}

// GetPreferences returns the preferences snapshot, creating defaults on
// first access.
// Params: none.
// Returns: resolved preferences or query error.
func (s *Store) GetPreferences() (Preferences, error) {
	var pref Preference
	err := s.db.First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pref = Preference{
			RecordingsDir:       "recordings",
			Theme:               "dark",
			Codec:               "mp4",
			RecordPolicyDefault: string(domain.PolicyManual),
		}
		if createErr := s.db.Create(&pref).Error; createErr != nil {
			return Preferences{}, fmt.Errorf("create preferences: %w", createErr)
		}
	} else if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return Preferences{
		RecordingsDir:       pref.RecordingsDir,
		Theme:               pref.Theme,
		Codec:               pref.Codec,
		RecordPolicyDefault: domain.ParseRecordPolicy(pref.RecordPolicyDefault),
	}, nil
}

// AppendAlertRecord appends one delivery-attempt row to the ledger.
// Params: ledger row fields; the row is never updated afterwards.
// Returns: insert error.
func (s *Store) AppendAlertRecord(record AlertRecord) error {
	record.ID = 0
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append alert record: %w", err)
	}
	return nil
}

// ListAlertRecords returns the most recent ledger rows.
// Params: row limit.
// Returns: rows ordered newest first, or query error.
func (s *Store) ListAlertRecords(limit int) ([]AlertRecord, error) {
	var rows []AlertRecord
	if err := s.db.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alert records: %w", err)
	}
	return rows, nil
}

// ValidateUser checks one local credential pair.
// Params: username and plaintext password.
// Returns: true when the bcrypt hash matches.
func (s *Store) ValidateUser(username, password string) (bool, error) {
	var user User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get user: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil, nil
}

// CreateUser inserts one local credential row with a bcrypt hash.
// Params: username and plaintext password.
// Returns: hash or insert error.
func (s *Store) CreateUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.Create(&User{Username: username, Password: string(hash)}).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
