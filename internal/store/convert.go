package store

import (
	"database/sql"
	"time"

	"planharvest/internal/db"
	"planharvest/internal/records"
)

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(db.DateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(db.DateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func createParams(rec records.ApplicationRecord) db.CreateApplicationParams {
	return db.CreateApplicationParams{
		CouncilReference:    rec.CouncilReference,
		Description:         rec.Description,
		DateScraped:         rec.DateScraped.UTC().Format(time.RFC3339),
		DateReceived:        nullDate(rec.DateReceived),
		OnNoticeTo:          nullDate(rec.OnNoticeTo),
		Address:             rec.Address,
		Applicant:           rec.Applicant,
		Owner:               rec.Owner,
		StageDescription:    rec.StageDescription,
		StageStatus:         rec.StageStatus,
		DocumentDescription: rec.DocumentDescription,
		TitleReference:      rec.TitleReference,
		PidReference:        rec.PidReference,
		Uuid:                rec.UUID,
		LgaCode:             rec.Jurisdiction,
	}
}

func fromRow(row db.Application) records.ApplicationRecord {
	scraped, _ := time.Parse(time.RFC3339, row.DateScraped)
	return records.ApplicationRecord{
		CouncilReference:    row.CouncilReference,
		Description:         row.Description,
		DateScraped:         scraped,
		DateReceived:        parseNullDate(row.DateReceived),
		OnNoticeTo:          parseNullDate(row.OnNoticeTo),
		Address:             row.Address,
		Applicant:           row.Applicant,
		Owner:               row.Owner,
		StageDescription:    row.StageDescription,
		StageStatus:         row.StageStatus,
		DocumentDescription: row.DocumentDescription,
		TitleReference:      row.TitleReference,
		PidReference:        row.PidReference,
		UUID:                row.Uuid,
		Jurisdiction:        row.LgaCode,
	}
}
