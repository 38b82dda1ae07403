package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/certsmith/certportal/internal/models"
)

// ErrNotFound is returned when no certificate matches the requested id.
var ErrNotFound = errors.New("certificate not found")

// Timestamps are stored as RFC 3339 UTC text so the column stays readable
// in sqlite tooling.
const timeFormat = time.RFC3339Nano

// CertRepository handles certificate record data access
type CertRepository struct {
	db *sql.DB
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db}
}

// Insert persists a new certificate record and assigns its id.
func (r *CertRepository) Insert(cert *models.CertificateRecord) error {
	sans, err := json.Marshal(cert.SubjectAltNames)
	if err != nil {
		return fmt.Errorf("failed to encode subject alt names: %w", err)
	}

	query := `
		INSERT INTO certificates (
			cn, sans, serial_number, profile,
			issued_at, expires_at, validity_days, status,
			certificate_pem, private_key_pem, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		cert.CommonName,
		string(sans),
		nullString(cert.SerialNumber),
		nullString(cert.Profile),
		cert.IssuedAt.UTC().Format(timeFormat),
		cert.ExpiresAt.UTC().Format(timeFormat),
		cert.ValidityDays,
		cert.Status,
		cert.CertificatePEM,
		cert.PrivateKeyPEM,
		cert.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cert.ID = id
	cert.HasPrivateKey = cert.PrivateKeyPEM != ""

	return nil
}

// GetByID retrieves a full certificate record, including the raw PEM key
// material. It is the only read path that exposes the private key.
func (r *CertRepository) GetByID(id int64) (*models.CertificateRecord, error) {
	query := `
		SELECT id, cn, sans, serial_number, profile,
		       issued_at, expires_at, validity_days, status,
		       certificate_pem, private_key_pem, created_at
		FROM certificates
		WHERE id = ?
	`

	var (
		cert         models.CertificateRecord
		sans         string
		serialNumber sql.NullString
		profile      sql.NullString
		validityDays sql.NullInt64
		issuedAt     string
		expiresAt    string
		createdAt    string
	)

	err := r.db.QueryRow(query, id).Scan(
		&cert.ID,
		&cert.CommonName,
		&sans,
		&serialNumber,
		&profile,
		&issuedAt,
		&expiresAt,
		&validityDays,
		&cert.Status,
		&cert.CertificatePEM,
		&cert.PrivateKeyPEM,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	if err := json.Unmarshal([]byte(sans), &cert.SubjectAltNames); err != nil {
		return nil, fmt.Errorf("failed to decode subject alt names: %w", err)
	}
	cert.SerialNumber = serialNumber.String
	cert.Profile = profile.String
	cert.ValidityDays = validityDays.Int64
	cert.HasPrivateKey = cert.PrivateKeyPEM != ""

	if cert.IssuedAt, err = parseTime(issuedAt); err != nil {
		return nil, err
	}
	if cert.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if cert.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &cert, nil
}

// List returns summaries of all records in reverse issuance order. Key
// material never appears in the result, only the has_private_key flag.
func (r *CertRepository) List() ([]models.CertificateSummary, error) {
	query := `
		SELECT id, cn, sans, serial_number, profile,
		       issued_at, expires_at, validity_days, status, certificate_pem,
		       CASE WHEN private_key_pem IS NULL OR private_key_pem = '' THEN 0 ELSE 1 END AS has_private_key
		FROM certificates
		ORDER BY id DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	summaries := []models.CertificateSummary{}

	for rows.Next() {
		var (
			s            models.CertificateSummary
			sans         string
			serialNumber sql.NullString
			profile      sql.NullString
			validityDays sql.NullInt64
			issuedAt     string
			expiresAt    string
		)

		err := rows.Scan(
			&s.ID,
			&s.CommonName,
			&sans,
			&serialNumber,
			&profile,
			&issuedAt,
			&expiresAt,
			&validityDays,
			&s.Status,
			&s.CertificatePEM,
			&s.HasPrivateKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}

		if err := json.Unmarshal([]byte(sans), &s.SubjectAltNames); err != nil {
			return nil, fmt.Errorf("failed to decode subject alt names: %w", err)
		}
		s.SerialNumber = serialNumber.String
		s.Profile = profile.String
		s.ValidityDays = validityDays.Int64

		if s.IssuedAt, err = parseTime(issuedAt); err != nil {
			return nil, err
		}
		if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
			return nil, err
		}

		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// Count returns the total number of stored records.
func (r *CertRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}
