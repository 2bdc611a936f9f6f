package badger

import (
	"fmt"
	"regexp"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// markPending tags every untagged record of dataType's kind for deletion
func markPending(db *BadgerDB, dataType interface{}, tag func(record interface{})) (int, error) {
	query := badgerhold.Where("PendingDelete").Eq(false)

	count, err := db.Store().Count(dataType, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	err = db.Store().UpdateMatching(dataType, query, func(record interface{}) error {
		tag(record)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark records pending delete: %w", err)
	}
	return int(count), nil
}

// deletePending removes every tagged record of dataType's kind
func deletePending(db *BadgerDB, dataType interface{}) (int, error) {
	query := badgerhold.Where("PendingDelete").Eq(true)

	count, err := db.Store().Count(dataType, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := db.Store().DeleteMatching(dataType, query); err != nil {
		return 0, fmt.Errorf("failed to delete pending records: %w", err)
	}
	return int(count), nil
}

// deletePass removes every record of dataType's kind whose Name matches the
// pass-scoped pattern, tagged or not
func deletePass(db *BadgerDB, dataType interface{}, pattern *regexp.Regexp) (int, error) {
	query := badgerhold.Where("Name").RegExp(pattern)

	count, err := db.Store().Count(dataType, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := db.Store().DeleteMatching(dataType, query); err != nil {
		return 0, fmt.Errorf("failed to delete pass records: %w", err)
	}
	return int(count), nil
}

// deletePendingBefore removes tagged records whose timeField is before cutoff
func deletePendingBefore(db *BadgerDB, dataType interface{}, timeField string, cutoff time.Time) (int, error) {
	query := badgerhold.Where("PendingDelete").Eq(true).And(timeField).Lt(cutoff)

	count, err := db.Store().Count(dataType, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := db.Store().DeleteMatching(dataType, query); err != nil {
		return 0, fmt.Errorf("failed to delete pending records: %w", err)
	}
	return int(count), nil
}
