// Package store keeps an audit log of executions and relays. Nothing here
// feeds back into eligibility decisions.
package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

const MemoryPath = ":memory:"

// Recorder is the write side used by the daemon and the relay.
type Recorder interface {
	AddExecution(proposalID uint64, txHash string, status string) error
	AddRelay(record *RelayRecord) error
}

var _ Recorder = &Store{}

type Store struct {
	logger cmtlog.Logger
	db     *gorm.DB
}

func Open(logger cmtlog.Logger, dbPath string) (*Store, error) {
	logger = logger.With("module", "store")
	logger.Info("open audit store", "dbPath", dbPath)
	if dbPath != MemoryPath && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection, so :memory: stays a single database
	db.DB().SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Execution{}, &RelayRecord{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	return &Store{logger: logger, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AddExecution(proposalID uint64, txHash string, status string) error {
	e := Execution{
		ProposalId:      proposalID,
		TxHash:          txHash,
		Status:          status,
		CreateTimestamp: time.Now().Unix(),
	}
	return s.db.Create(&e).Error
}

func (s *Store) AddRelay(record *RelayRecord) error {
	if record.CreateTimestamp == 0 {
		record.CreateTimestamp = time.Now().Unix()
	}
	return s.db.Create(record).Error
}

// GetExecutions pages executions, newest first. Proposal id 0 returns every
// record.
func (s *Store) GetExecutions(proposalID uint64, page int, pageSize int) ([]Execution, uint64, error) {
	query := s.db.Model(&Execution{})
	if proposalID != 0 {
		query = query.Where("proposal_id = ?", proposalID)
	}
	var executions []Execution
	err := query.Order("id desc").Offset(page * pageSize).Limit(pageSize).Find(&executions).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return executions, total, nil
}

// GetRelays pages relay records, newest first. An empty address returns
// every record.
func (s *Store) GetRelays(address string, page int, pageSize int) ([]RelayRecord, uint64, error) {
	query := s.db.Model(&RelayRecord{})
	if address != "" {
		query = query.Where("from_address = ?", address)
	}
	var relays []RelayRecord
	err := query.Order("id desc").Offset(page * pageSize).Limit(pageSize).Find(&relays).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return relays, total, nil
}
