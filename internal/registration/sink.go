package registration

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"avmboard/server/internal/metrics"
	"avmboard/server/internal/models"
)

// csvHeader is the column order of the registration file
var csvHeader = []string{"id", "name", "email", "phone", "city", "purpose", "timestamp"}

// Store persists registrations. commit runs after the row is written and
// before it becomes durable; an error from commit discards the row.
type Store interface {
	InsertRegistration(rec *models.Registration, commit func() error) error
}

// Receipt is the outcome of a registration. The record is stored even
// when UploadErr is set.
type Receipt struct {
	Record    models.Registration
	Uploaded  bool
	UploadErr error
}

// Sink appends visitor registrations to the store and a local CSV file,
// then uploads the CSV to its destination
type Sink struct {
	store       Store
	csvPath     string
	uploader    Uploader
	destination string
	metrics     *metrics.Collector
	logger      *logrus.Logger
	now         func() time.Time

	mu sync.Mutex
}

// NewSink creates a sink. A nil uploader keeps registrations local.
func NewSink(store Store, csvPath string, uploader Uploader, destination string, collector *metrics.Collector, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sink{
		store:       store,
		csvPath:     csvPath,
		uploader:    uploader,
		destination: destination,
		metrics:     collector,
		logger:      logger,
		now:         time.Now,
	}
}

// Register stores a new registration. The returned error covers local
// persistence only; upload failures are reported on the receipt.
func (s *Sink) Register(ctx context.Context, req models.RegistrationRequest) (Receipt, error) {
	rec := models.Registration{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		City:      strings.TrimSpace(req.City),
		Purpose:   strings.TrimSpace(req.Purpose),
		Timestamp: s.now().UTC().Truncate(time.Second),
	}
	if rec.Name == "" || rec.Email == "" {
		return Receipt{}, errors.New("name and email are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appendFile := func() error {
		if err := appendCSV(s.csvPath, rec); err != nil {
			return fmt.Errorf("failed to append registration file: %w", err)
		}
		return nil
	}
	if s.store != nil {
		if err := s.store.InsertRegistration(&rec, appendFile); err != nil {
			return Receipt{}, err
		}
	} else if err := appendFile(); err != nil {
		return Receipt{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"id":   rec.ID,
		"city": rec.City,
	}).Info("Stored visitor registration")

	receipt := Receipt{Record: rec}
	if s.uploader == nil {
		return receipt, nil
	}

	if err := s.uploader.Upload(ctx, s.csvPath, s.destination); err != nil {
		var uerr *UploadError
		if !errors.As(err, &uerr) {
			err = &UploadError{Destination: s.destination, Err: err}
		}
		s.logger.WithError(err).WithField("destination", s.destination).Warn("Registration upload failed")
		receipt.UploadErr = err
		s.metrics.ObserveRegistration(false)
		return receipt, nil
	}

	receipt.Uploaded = true
	s.metrics.ObserveRegistration(true)
	s.logger.WithField("destination", s.destination).Info("Uploaded registrations file")
	return receipt, nil
}

func appendCSV(path string, rec models.Registration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write([]string{
		rec.ID,
		rec.Name,
		rec.Email,
		rec.Phone,
		rec.City,
		rec.Purpose,
		rec.Timestamp.Format(models.RegistrationTimeLayout),
	}); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAll reads every registration from a CSV written by the sink
func ReadAll(path string) ([]models.Registration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]models.Registration, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected column %q at position %d", header[i], i)
		}
	}

	var out []models.Registration
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read registration: %w", err)
		}
		ts, err := time.Parse(models.RegistrationTimeLayout, row[6])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", row[6], err)
		}
		out = append(out, models.Registration{
			ID:        row[0],
			Name:      row[1],
			Email:     row[2],
			Phone:     row[3],
			City:      row[4],
			Purpose:   row[5],
			Timestamp: ts,
		})
	}
	return out, nil
}
