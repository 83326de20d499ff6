package records

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// DSM is one direct secure message sent to a clinic.
type DSM struct {
	MessageID      string
	MessageDate    time.Time
	Clinic         string
	SenderCategory string
	SentFrom       string
	ReferralID     string
	DateSent       time.Time
	PersonID       string

	// LagDate90 is the message date plus 90 days.
	LagDate90 time.Time
	// ReferralPersonID is PersonID when the message is tied to a referral, otherwise empty.
	ReferralPersonID string
}

// DSMTable is the immutable master message table.
type DSMTable struct {
	Rows []DSM
}

// Clinics returns the distinct clinic names in sorted order.
func (t *DSMTable) Clinics() []string {
	if t == nil {
		return nil
	}
	return distinct(len(t.Rows), func(i int) string { return t.Rows[i].Clinic })
}

// LoadDSMs reads the direct secure message CSV at path.
func LoadDSMs(path string) (*DSMTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadDSMs(file, path)
}

// ReadDSMs parses message rows.
func ReadDSMs(r io.Reader, source string) (*DSMTable, error) {
	tbl, err := openTable(r, source)
	if err != nil {
		return nil, err
	}

	messageIdx, err := tbl.require("Message ID")
	if err != nil {
		return nil, err
	}
	dateIdx, err := tbl.require("Message Date")
	if err != nil {
		return nil, err
	}
	clinicIdx, err := tbl.require("Clinic")
	if err != nil {
		return nil, err
	}
	personIdx, err := tbl.require("Person ID")
	if err != nil {
		return nil, err
	}
	referralIdx := tbl.optional("Referral ID")
	sentIdx := tbl.optional("Date Referral Sent")
	categoryIdx := tbl.optional("Sender Category")
	fromIdx := tbl.optional("Sent From")

	result := &DSMTable{}
	for {
		record, err := tbl.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		messageDate, err := tbl.date(record, dateIdx, "Message Date")
		if err != nil {
			return nil, err
		}
		if messageDate.IsZero() {
			return nil, fmt.Errorf("%s line %d: %w: empty Message Date", source, tbl.line, ErrInvalidDate)
		}
		sent, err := tbl.date(record, sentIdx, "Date Referral Sent")
		if err != nil {
			return nil, err
		}

		msg := DSM{
			MessageID:      getValue(record, messageIdx),
			MessageDate:    messageDate,
			Clinic:         getValue(record, clinicIdx),
			SenderCategory: getValue(record, categoryIdx),
			SentFrom:       getValue(record, fromIdx),
			ReferralID:     getValue(record, referralIdx),
			DateSent:       sent,
			PersonID:       getValue(record, personIdx),
			LagDate90:      messageDate.AddDate(0, 0, 90),
		}
		if msg.ReferralID != "" {
			msg.ReferralPersonID = msg.PersonID
		}
		result.Rows = append(result.Rows, msg)
	}
	return result, nil
}
