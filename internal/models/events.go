package models

// Realtime event names shared by the client channel and the development backend.
const (
	EventConnect             = "connect"
	EventDisconnect          = "disconnect"
	EventJoinDoctorRoom      = "join_doctor_room"
	EventJoinPatientRoom     = "join_patient_room"
	EventJoinChatRoom        = "join_chat_room"
	EventLeaveChatRoom       = "leave_chat_room"
	EventTyping              = "typing"
	EventNewMessage          = "new_message"
	EventChatRequest         = "chat_request"
	EventChatRequestAccepted = "chat_request_accepted"
	EventPatientAlert        = "patient_alert"
	EventMilestoneEarned     = "milestone_earned"
)

type DoctorRoomPayload struct {
	DoctorID string `json:"doctor_id"`
}

type PatientRoomPayload struct {
	PatientID string `json:"patient_id"`
}

type ChatRoomPayload struct {
	SessionID string `json:"session_id"`
}

// NewMessageEvent 新消息推送
type NewMessageEvent struct {
	SessionID string      `json:"session_id"`
	Message   ChatMessage `json:"message"`
}

// TypingEvent 输入中推送
type TypingEvent struct {
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
}

// ChatRequestEvent 患者发起聊天请求（推送给医生）
type ChatRequestEvent struct {
	SessionID   string `json:"session_id"`
	PatientName string `json:"patient_name"`
	Title       string `json:"title"`
}

// ChatRequestAcceptedEvent 医生接受请求（推送给患者）
type ChatRequestAcceptedEvent struct {
	SessionID  string `json:"session_id"`
	DoctorName string `json:"doctor_name"`
}

type PatientAlertEvent struct {
	Type        string `json:"type"` // escalation, sos
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Severity    string `json:"severity"`
	IsSOS       bool   `json:"is_sos"`
}

type Milestone struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

type MilestoneEarnedEvent struct {
	Milestones []Milestone `json:"milestones"`
}
