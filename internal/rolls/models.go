package rolls

import "time"

// Die type codes of the fixed dice set.
const (
	DieCodeBasic    = "BD"
	DieCodeCombo    = "CD"
	DieCodeLucky    = "LD"
	DieCodeModifier = "MD"
)

// CampaignSystem is the system label stamped on every campaign.
const CampaignSystem = "SAO RPG"

// User is the submitting player. A new row is created per submission.
type User struct {
	ID    int64   `gorm:"column:userid;primaryKey;autoIncrement"`
	Name  string  `gorm:"column:name;size:255;not null"`
	Email *string `gorm:"column:email;size:255"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "app_user"
}

// Campaign groups sessions and characters for one game.
type Campaign struct {
	ID       int64  `gorm:"column:campaignid;primaryKey;autoIncrement"`
	Name     string `gorm:"column:name;size:255;not null"`
	Title    string `gorm:"column:title;size:255"`
	System   string `gorm:"column:system;size:255"`
	IsPublic bool   `gorm:"column:ispublic;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Campaign) TableName() string {
	return "campaign"
}

// Character is owned by one user and belongs to one campaign.
type Character struct {
	ID          int64     `gorm:"column:characterid;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;size:255;not null"`
	Class       *string   `gorm:"column:class;size:255"`
	OwnerUserID int64     `gorm:"column:owneruserid;not null"`
	CampaignID  int64     `gorm:"column:campaignid;not null"`
	Owner       *User     `gorm:"foreignKey:OwnerUserID;references:ID"`
	Campaign    *Campaign `gorm:"foreignKey:CampaignID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Character) TableName() string {
	return "character"
}

// Session is one sitting of a campaign.
type Session struct {
	ID         int64      `gorm:"column:sessionid;primaryKey;autoIncrement"`
	Title      string     `gorm:"column:title;size:255;not null"`
	CampaignID int64      `gorm:"column:campaignid;not null"`
	StartTime  time.Time  `gorm:"column:starttime;not null"`
	EndTime    *time.Time `gorm:"column:endtime"`
	Campaign   *Campaign  `gorm:"foreignKey:CampaignID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "session"
}

// Post is an optional external link attached to a roll.
type Post struct {
	ID          int64  `gorm:"column:postid;primaryKey;autoIncrement"`
	URL         string `gorm:"column:url;type:text"`
	Description string `gorm:"column:description;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "post"
}

// Roll is the central fact: one dice event. Purpose is stored as free text
// in the purposeid column.
type Roll struct {
	ID          int64      `gorm:"column:rollid;primaryKey;autoIncrement"`
	UserID      int64      `gorm:"column:userid;not null"`
	Purpose     string     `gorm:"column:purposeid;type:text"`
	SessionID   int64      `gorm:"column:sessionid;not null"`
	CharacterID int64      `gorm:"column:characterid;not null"`
	PostID      *int64     `gorm:"column:postid"`
	Timestamp   time.Time  `gorm:"column:ts;not null"`
	User        *User      `gorm:"foreignKey:UserID;references:ID"`
	Session     *Session   `gorm:"foreignKey:SessionID;references:ID"`
	Character   *Character `gorm:"foreignKey:CharacterID;references:ID"`
	Post        *Post      `gorm:"foreignKey:PostID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Roll) TableName() string {
	return "roll"
}

// DieType is a reference row describing one die of the fixed set.
type DieType struct {
	ID    int64  `gorm:"column:dietypeid;primaryKey;autoIncrement"`
	Code  string `gorm:"column:code;size:10;not null;uniqueIndex:idx_dietype_code"`
	Name  string `gorm:"column:name;size:255;not null"`
	Sides int    `gorm:"column:sides;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DieType) TableName() string {
	return "dietype"
}

// DieResult is one rolled value of one die within a roll.
type DieResult struct {
	ID        int64    `gorm:"column:dieresultid;primaryKey;autoIncrement"`
	RollID    int64    `gorm:"column:rollid;not null"`
	DieTypeID int64    `gorm:"column:dietypeid;not null"`
	Value     int      `gorm:"column:value;not null"`
	Roll      *Roll    `gorm:"foreignKey:RollID;references:ID"`
	DieType   *DieType `gorm:"foreignKey:DieTypeID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (DieResult) TableName() string {
	return "dieresult"
}

// DiceValues is the fixed-shape result of the four dice.
type DiceValues struct {
	BD int
	CD int
	LD int
	MD int
}

// ValueFor returns the value recorded for a die code, 0 when unknown.
func (v DiceValues) ValueFor(code string) int {
	switch code {
	case DieCodeBasic:
		return v.BD
	case DieCodeCombo:
		return v.CD
	case DieCodeLucky:
		return v.LD
	case DieCodeModifier:
		return v.MD
	default:
		return 0
	}
}

func (v *DiceValues) set(code string, value int) {
	switch code {
	case DieCodeBasic:
		v.BD = value
	case DieCodeCombo:
		v.CD = value
	case DieCodeLucky:
		v.LD = value
	case DieCodeModifier:
		v.MD = value
	}
}

// Submission captures the raw form input for a roll.
type Submission struct {
	Username      string
	Email         string
	CharacterName string
	URL           string
	Purpose       string
	Campaign      string
	SessionName   string
}

// SubmitResult is returned after a roll has been persisted.
type SubmitResult struct {
	RollID    int64
	Dice      DiceValues
	Timestamp time.Time
}

// SearchFilters narrows a roll search. Zero values mean "no filter".
type SearchFilters struct {
	RollID        *int64
	CharacterName string
}

// RollRecord is a roll reassembled with its owning entities and dice.
type RollRecord struct {
	RollID        int64
	UserID        int64
	Username      string
	Email         *string
	CharacterName string
	CampaignName  string
	SessionTitle  string
	Purpose       string
	URL           *string
	Timestamp     time.Time
	Dice          DiceValues
}
