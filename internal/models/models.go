package models

import "time"

// AIAgent is the assigned-party value for calls owned by the triage agent.
const AIAgent = "AI_AGENT"

type CallStatus string

const (
	StatusIncoming         CallStatus = "INCOMING"
	StatusAIHandling       CallStatus = "AI_HANDLING"
	StatusOperatorHandling CallStatus = "OPERATOR_HANDLING"
	StatusQueued           CallStatus = "QUEUED"
	StatusInProgress       CallStatus = "IN_PROGRESS"
	StatusCompleted        CallStatus = "COMPLETED"
	StatusDropped          CallStatus = "DROPPED"
	StatusArchived         CallStatus = "ARCHIVED"
)

// Active reports whether the status is a non-terminal lifecycle value.
func (s CallStatus) Active() bool {
	switch s {
	case StatusIncoming, StatusAIHandling, StatusOperatorHandling, StatusQueued, StatusInProgress:
		return true
	}
	return false
}

type EmergencyType string

const (
	EmergencyCardiacArrest EmergencyType = "CARDIAC_ARREST"
	EmergencyStroke        EmergencyType = "STROKE"
	EmergencySevereTrauma  EmergencyType = "SEVERE_TRAUMA"
	EmergencyFire          EmergencyType = "FIRE"
	EmergencyCrime         EmergencyType = "CRIME"
	EmergencyRescue        EmergencyType = "RESCUE"
	EmergencyMedical       EmergencyType = "MEDICAL_EMERGENCY"
	EmergencyAccident      EmergencyType = "ACCIDENT"
	EmergencyMinorInjury   EmergencyType = "MINOR_INJURY"
	EmergencyNonEmergency  EmergencyType = "NON_EMERGENCY"
	EmergencyUnknown       EmergencyType = "UNKNOWN"
)

type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "CRITICAL"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityLow      SeverityLevel = "LOW"
)

type OperatorStatus string

const (
	OperatorAvailable OperatorStatus = "AVAILABLE"
	OperatorBusy      OperatorStatus = "BUSY"
	OperatorOffline   OperatorStatus = "OFFLINE"
)

type Location struct {
	Address   string   `json:"address,omitempty"`
	Landmark  string   `json:"landmark,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type VictimInfo struct {
	Conscious *bool `json:"conscious,omitempty"`
	Breathing *bool `json:"breathing,omitempty"`
	Age       *int  `json:"age,omitempty"`
}

type TranscriptEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedInfo holds what the triage agent derived from the conversation.
type ExtractedInfo struct {
	EmergencyType      EmergencyType `json:"emergency_type,omitempty"`
	Location           *Location     `json:"location,omitempty"`
	SeverityIndicators []string      `json:"severity_indicators,omitempty"`
}

type Call struct {
	ID            string            `json:"id"`
	CallNumber    int               `json:"call_number"`
	CallerContact string            `json:"caller_contact"`
	EmergencyType EmergencyType     `json:"emergency_type"`
	Location      *Location         `json:"location,omitempty"`
	Victim        *VictimInfo       `json:"victim,omitempty"`
	Extracted     *ExtractedInfo    `json:"extracted,omitempty"`
	Summary       string            `json:"summary"`
	Transcript    []TranscriptEntry `json:"transcript"`
	Status        CallStatus        `json:"status"`
	AssignedTo    string            `json:"assigned_to,omitempty"`
	SeverityScore int               `json:"severity_score"`
	SeverityLevel SeverityLevel     `json:"severity_level"`
	Archived      bool              `json:"archived"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	AnsweredAt    *time.Time        `json:"answered_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Indicators returns the agent-extracted severity indicators, if any.
func (c *Call) Indicators() []string {
	if c.Extracted == nil {
		return nil
	}
	return c.Extracted.SeverityIndicators
}

// Address returns the best known free-text location, preferring the call's
// recorded location over the agent-extracted one.
func (c *Call) Address() string {
	if c.Location != nil && c.Location.Address != "" {
		return c.Location.Address
	}
	if c.Extracted != nil && c.Extracted.Location != nil {
		return c.Extracted.Location.Address
	}
	return ""
}

// Clone returns a deep copy safe to hand outside the owning goroutine.
func (c Call) Clone() Call {
	out := c
	if c.Location != nil {
		loc := cloneLocation(*c.Location)
		out.Location = &loc
	}
	if c.Victim != nil {
		v := cloneVictim(*c.Victim)
		out.Victim = &v
	}
	if c.Extracted != nil {
		ex := *c.Extracted
		if ex.Location != nil {
			loc := cloneLocation(*ex.Location)
			ex.Location = &loc
		}
		ex.SeverityIndicators = append([]string(nil), ex.SeverityIndicators...)
		out.Extracted = &ex
	}
	out.Transcript = append([]TranscriptEntry(nil), c.Transcript...)
	if c.AnsweredAt != nil {
		t := *c.AnsweredAt
		out.AnsweredAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneLocation(l Location) Location {
	if l.Latitude != nil {
		v := *l.Latitude
		l.Latitude = &v
	}
	if l.Longitude != nil {
		v := *l.Longitude
		l.Longitude = &v
	}
	return l
}

func cloneVictim(v VictimInfo) VictimInfo {
	if v.Conscious != nil {
		b := *v.Conscious
		v.Conscious = &b
	}
	if v.Breathing != nil {
		b := *v.Breathing
		v.Breathing = &b
	}
	if v.Age != nil {
		a := *v.Age
		v.Age = &a
	}
	return v
}

type Operator struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      OperatorStatus `json:"status"`
	CurrentCall string         `json:"current_call,omitempty"`
	CallsTaken  int            `json:"calls_taken"`
	JoinedAt    time.Time      `json:"joined_at"`
}
