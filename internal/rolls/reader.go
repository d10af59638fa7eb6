package rolls

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// RecentLimit caps the unfiltered history view.
	RecentLimit = 20
	// FilteredLimit caps any filtered search.
	FilteredLimit = 50
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Active reports whether any filter is set.
func (f SearchFilters) Active() bool {
	return f.RollID != nil || strings.TrimSpace(f.CharacterName) != ""
}

// Limit returns the result cap for the filters.
func (f SearchFilters) Limit() int {
	if f.Active() {
		return FilteredLimit
	}
	return RecentLimit
}

type rollRow struct {
	RollID        int64
	UserID        int64
	Username      string
	Email         *string
	CharacterName string
	CampaignName  string
	SessionTitle  string
	Purpose       string
	URL           *string
	RolledAt      time.Time
}

type dieResultRow struct {
	RollID int64
	Code   string
	Value  int
}

// SearchRolls returns matching rolls most recent first. An empty slice with
// a nil error means no roll matched; datastore failures are returned as
// *PersistenceError.
func (s *Service) SearchRolls(ctx context.Context, filters SearchFilters) ([]RollRecord, error) {
	if s.db == nil {
		s.logError(opSearchRolls, "missing_database", errMissingDatabase)
		return nil, newPersistenceError(opSearchRolls, "missing_database", errMissingDatabase)
	}

	var records []RollRecord
	err := s.withRetry(ctx, opSearchRolls, func(ctx context.Context) error {
		found, err := s.queryRolls(s.db.WithContext(ctx), filters)
		if err != nil {
			return err
		}
		records = found
		return nil
	})
	if err != nil {
		s.logError(opSearchRolls, "query_failed", err, filterFields(filters)...)
		return nil, newPersistenceError(opSearchRolls, "query_failed", err)
	}
	return records, nil
}

// GetRoll returns a single roll by identifier.
func (s *Service) GetRoll(ctx context.Context, rollID int64) (RollRecord, error) {
	records, err := s.SearchRolls(ctx, SearchFilters{RollID: &rollID})
	if err != nil {
		return RollRecord{}, err
	}
	if len(records) == 0 {
		return RollRecord{}, &NotFoundError{RollID: rollID}
	}
	return records[0], nil
}

// ListDieTypes returns the seeded die types ordered by code.
func (s *Service) ListDieTypes(ctx context.Context) ([]DieType, error) {
	if s.db == nil {
		s.logError(opListDieTypes, "missing_database", errMissingDatabase)
		return nil, newPersistenceError(opListDieTypes, "missing_database", errMissingDatabase)
	}

	var dieTypes []DieType
	err := s.withRetry(ctx, opListDieTypes, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Order("code").Find(&dieTypes).Error
	})
	if err != nil {
		s.logError(opListDieTypes, "query_failed", err)
		return nil, newPersistenceError(opListDieTypes, "query_failed", err)
	}
	return dieTypes, nil
}

func (s *Service) queryRolls(db *gorm.DB, filters SearchFilters) ([]RollRecord, error) {
	query := db.Table("roll AS r").
		Select(`r.rollid AS roll_id,
			r.userid AS user_id,
			u.name AS username,
			u.email AS email,
			c.name AS character_name,
			camp.name AS campaign_name,
			s.title AS session_title,
			r.purposeid AS purpose,
			p.url AS url,
			r.ts AS rolled_at`).
		Joins("JOIN app_user AS u ON r.userid = u.userid").
		Joins(`JOIN "character" AS c ON r.characterid = c.characterid`).
		Joins("JOIN campaign AS camp ON c.campaignid = camp.campaignid").
		Joins("JOIN session AS s ON r.sessionid = s.sessionid").
		Joins("LEFT JOIN post AS p ON r.postid = p.postid")

	if filters.RollID != nil {
		query = query.Where("r.rollid = ?", *filters.RollID)
	}
	if strings.TrimSpace(filters.CharacterName) != "" {
		// Fold both sides in the engine; SQLite LOWER folds ASCII only.
		pattern := "%" + likeEscaper.Replace(filters.CharacterName) + "%"
		query = query.Where(`LOWER(c.name) LIKE LOWER(?) ESCAPE '\'`, pattern)
	}

	var rows []rollRow
	if err := query.
		Order("r.ts DESC").
		Order("r.rollid DESC").
		Limit(filters.Limit()).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []RollRecord{}, nil
	}

	rollIDs := make([]int64, len(rows))
	for index, row := range rows {
		rollIDs[index] = row.RollID
	}

	var dieRows []dieResultRow
	if err := db.Table("dieresult AS dr").
		Select("dr.rollid AS roll_id, dt.code AS code, dr.value AS value").
		Joins("JOIN dietype AS dt ON dr.dietypeid = dt.dietypeid").
		Where("dr.rollid IN ?", rollIDs).
		Scan(&dieRows).Error; err != nil {
		return nil, err
	}

	diceByRoll := make(map[int64]DiceValues, len(rows))
	for _, dieRow := range dieRows {
		values := diceByRoll[dieRow.RollID]
		values.set(dieRow.Code, dieRow.Value)
		diceByRoll[dieRow.RollID] = values
	}

	records := make([]RollRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, RollRecord{
			RollID:        row.RollID,
			UserID:        row.UserID,
			Username:      row.Username,
			Email:         row.Email,
			CharacterName: row.CharacterName,
			CampaignName:  row.CampaignName,
			SessionTitle:  row.SessionTitle,
			Purpose:       row.Purpose,
			URL:           row.URL,
			Timestamp:     row.RolledAt,
			Dice:          diceByRoll[row.RollID],
		})
	}
	return records, nil
}

func filterFields(filters SearchFilters) []zap.Field {
	fields := []zap.Field{zap.String("character_name", filters.CharacterName)}
	if filters.RollID != nil {
		fields = append(fields, zap.Int64("roll_id", *filters.RollID))
	}
	return fields
}
