package rolls

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Submission field names reported by MissingFieldError.
const (
	FieldUsername      = "username"
	FieldCharacterName = "character_name"
	FieldPurpose       = "purpose"
	FieldCampaign      = "campaign"
	FieldSessionName   = "session_name"
)

func (s Submission) normalized() Submission {
	return Submission{
		Username:      strings.TrimSpace(s.Username),
		Email:         strings.TrimSpace(s.Email),
		CharacterName: strings.TrimSpace(s.CharacterName),
		URL:           strings.TrimSpace(s.URL),
		Purpose:       strings.TrimSpace(s.Purpose),
		Campaign:      strings.TrimSpace(s.Campaign),
		SessionName:   strings.TrimSpace(s.SessionName),
	}
}

// Validate reports every blank required field at once.
func (s Submission) Validate() error {
	normalized := s.normalized()
	required := []struct {
		name  string
		value string
	}{
		{FieldUsername, normalized.Username},
		{FieldCharacterName, normalized.CharacterName},
		{FieldPurpose, normalized.Purpose},
		{FieldCampaign, normalized.Campaign},
		{FieldSessionName, normalized.SessionName},
	}

	var missing []string
	for _, field := range required {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// SubmitRoll validates the submission, rolls the four dice and persists the
// user, campaign, character, session, optional post, roll and die results in
// a single transaction.
func (s *Service) SubmitRoll(ctx context.Context, submission Submission) (SubmitResult, error) {
	if err := submission.Validate(); err != nil {
		return SubmitResult{}, err
	}
	if s.db == nil {
		s.logError(opSubmitRoll, "missing_database", errMissingDatabase)
		return SubmitResult{}, newPersistenceError(opSubmitRoll, "missing_database", errMissingDatabase)
	}

	input := submission.normalized()
	dice, err := rollDice(s.roller)
	if err != nil {
		s.logError(opSubmitRoll, "dice_roll_failed", err)
		return SubmitResult{}, newPersistenceError(opSubmitRoll, "dice_roll_failed", err)
	}
	rolledAt := s.clock().UTC()

	var rollID int64
	err = s.withRetry(ctx, opSubmitRoll, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			id, err := s.insertRoll(tx, input, dice, rolledAt)
			if err != nil {
				return err
			}
			rollID = id
			return nil
		})
	})
	if err != nil {
		var persistenceErr *PersistenceError
		if errors.As(err, &persistenceErr) {
			return SubmitResult{}, persistenceErr
		}
		s.logError(opSubmitRoll, "transaction_failed", err,
			zap.String("character_name", input.CharacterName),
			zap.String("campaign", input.Campaign))
		return SubmitResult{}, newPersistenceError(opSubmitRoll, "transaction_failed", err)
	}

	s.loggerOrDefault().Info("roll recorded",
		zap.Int64("roll_id", rollID),
		zap.String("character_name", input.CharacterName),
		zap.Int("bd", dice.BD),
		zap.Int("cd", dice.CD),
		zap.Int("ld", dice.LD),
		zap.Int("md", dice.MD))

	return SubmitResult{RollID: rollID, Dice: dice, Timestamp: rolledAt}, nil
}

func (s *Service) insertRoll(tx *gorm.DB, input Submission, dice DiceValues, rolledAt time.Time) (int64, error) {
	create := func(value any) error {
		return tx.Omit(clause.Associations).Create(value).Error
	}

	user := User{Name: input.Username}
	if input.Email != "" {
		email := input.Email
		user.Email = &email
	}
	if err := create(&user); err != nil {
		return 0, s.stepFailed("user_insert_failed", err)
	}

	campaign := Campaign{
		Name:     input.Campaign,
		Title:    input.Campaign,
		System:   CampaignSystem,
		IsPublic: true,
	}
	if err := create(&campaign); err != nil {
		return 0, s.stepFailed("campaign_insert_failed", err)
	}

	character := Character{
		Name:        input.CharacterName,
		OwnerUserID: user.ID,
		CampaignID:  campaign.ID,
	}
	if err := create(&character); err != nil {
		return 0, s.stepFailed("character_insert_failed", err)
	}

	session := Session{
		Title:      input.SessionName,
		CampaignID: campaign.ID,
		StartTime:  rolledAt,
	}
	if err := create(&session); err != nil {
		return 0, s.stepFailed("session_insert_failed", err)
	}

	var postID *int64
	if input.URL != "" {
		post := Post{URL: input.URL, Description: input.Purpose}
		if err := create(&post); err != nil {
			return 0, s.stepFailed("post_insert_failed", err)
		}
		postID = &post.ID
	}

	roll := Roll{
		UserID:      user.ID,
		Purpose:     input.Purpose,
		SessionID:   session.ID,
		CharacterID: character.ID,
		PostID:      postID,
		Timestamp:   rolledAt,
	}
	if err := create(&roll); err != nil {
		return 0, s.stepFailed("roll_insert_failed", err)
	}

	dieTypes, err := ensureDieTypes(tx)
	if err != nil {
		return 0, s.stepFailed("die_type_seed_failed", err)
	}

	results := make([]DieResult, 0, len(dieTypes))
	for _, dieType := range dieTypes {
		results = append(results, DieResult{
			RollID:    roll.ID,
			DieTypeID: dieType.ID,
			Value:     dice.ValueFor(dieType.Code),
		})
	}
	if err := create(&results); err != nil {
		return 0, s.stepFailed("die_result_insert_failed", err)
	}

	return roll.ID, nil
}

// stepFailed logs a failed write step and keeps the driver error reachable
// so the retry classifier can inspect it.
func (s *Service) stepFailed(reason string, err error) error {
	s.logError(opSubmitRoll, reason, err)
	return newPersistenceError(opSubmitRoll, reason, err)
}
