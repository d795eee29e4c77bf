package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pvieira/imsgd/internal/store"
)

type chatDTO struct {
	GUID         string   `json:"guid"`
	Identifier   string   `json:"identifier"`
	DisplayName  string   `json:"displayName,omitempty"`
	IsGroup      bool     `json:"isGroup"`
	LastReadAt   *int64   `json:"lastReadAt,omitempty"`
	Participants []string `json:"participants"`
}

func toChatDTO(c *store.Chat) chatDTO {
	dto := chatDTO{
		GUID:         c.GUID,
		Identifier:   c.Identifier,
		DisplayName:  c.DisplayName,
		IsGroup:      c.IsGroup(),
		Participants: c.Participants,
	}
	if !c.LastReadAt.IsZero() {
		ms := c.LastReadAt.UnixMilli()
		dto.LastReadAt = &ms
	}
	return dto
}

type attachmentDTO struct {
	GUID         string `json:"guid"`
	TransferName string `json:"transferName"`
	MimeType     string `json:"mimeType,omitempty"`
	TotalBytes   int64  `json:"totalBytes"`
}

type messageDTO struct {
	GUID        string          `json:"guid"`
	Text        string          `json:"text"`
	Subject     string          `json:"subject,omitempty"`
	FromMe      bool            `json:"fromMe"`
	IsSent      bool            `json:"isSent"`
	Error       int             `json:"error,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	DeliveredAt *int64          `json:"deliveredAt,omitempty"`
	ReadAt      *int64          `json:"readAt,omitempty"`
	EditedAt    *int64          `json:"editedAt,omitempty"`
	RetractedAt *int64          `json:"retractedAt,omitempty"`
	ChatGUIDs   []string        `json:"chatGuids"`
	Attachments []attachmentDTO `json:"attachments,omitempty"`
}

func msTime(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func toMessageDTO(m *store.Message) messageDTO {
	dto := messageDTO{
		GUID:        m.GUID,
		Text:        m.UniversalText(),
		Subject:     m.Subject,
		FromMe:      m.FromMe,
		IsSent:      m.IsSent,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt.UnixMilli(),
		DeliveredAt: msTime(m.DeliveredAt),
		ReadAt:      msTime(m.ReadAt),
		EditedAt:    msTime(m.EditedAt),
		RetractedAt: msTime(m.RetractedAt),
		ChatGUIDs:   m.ChatGUIDs,
	}
	for _, a := range m.Attachments {
		dto.Attachments = append(dto.Attachments, attachmentDTO{
			GUID:         a.GUID,
			TransferName: a.TransferName,
			MimeType:     a.MimeType,
			TotalBytes:   a.TotalBytes,
		})
	}
	return dto
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"session": s.session,
		"time":    time.Now().UnixMilli(),
	}
	if s.machine != nil {
		info["state"] = s.machine.Current()
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	chats, err := s.chats.ListChats(limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]chatDTO, 0, len(chats))
	for i := range chats {
		out = append(out, toChatDTO(&chats[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.GetChat(r.PathValue("guid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if c == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "chat not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, toChatDTO(c))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	before := time.Now()
	if v := r.URL.Query().Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "before must be a unix millisecond timestamp"})
			return
		}
		before = time.UnixMilli(ms)
	}

	msgs, err := s.chats.ListMessages(r.PathValue("guid"), before, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]messageDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageDTO(&msgs[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := s.chats.GetMessage(r.PathValue("guid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if m == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "message not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, toMessageDTO(m))
}

type sendTextRequest struct {
	ChatGUID string `json:"chatGuid"`
	Text     string `json:"text"`
	Subject  string `json:"subject"`
	Token    string `json:"token"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if req.ChatGUID == "" || req.Text == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "chatGuid and text are required"})
		return
	}

	res, err := s.actions.SendText(r.Context(), req.ChatGUID, req.Text, req.Subject, req.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":   res.Token,
		"message": toMessageDTO(res.Row),
	})
}

type sendAttachmentRequest struct {
	ChatGUID string `json:"chatGuid"`
	Path     string `json:"path"`
	Token    string `json:"token"`
}

func (s *Server) handleSendAttachment(w http.ResponseWriter, r *http.Request) {
	var req sendAttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if req.ChatGUID == "" || req.Path == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "chatGuid and path are required"})
		return
	}

	res, err := s.actions.SendAttachment(r.Context(), req.ChatGUID, req.Path, req.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":   res.Token,
		"message": toMessageDTO(res.Row),
	})
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "name is required"})
		return
	}
	if err := s.actions.RenameChat(r.Context(), r.PathValue("guid"), req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type participantRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	s.handleParticipant(w, r, s.actions.AddParticipant)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	s.handleParticipant(w, r, s.actions.RemoveParticipant)
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, chatGUID, address string) error) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "address is required"})
		return
	}
	if err := op(r.Context(), r.PathValue("guid"), req.Address); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTapback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reaction int `json:"reaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reaction < 1 || req.Reaction > 6 {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "reaction must be between 1 and 6"})
		return
	}
	if err := s.actions.SendTapback(r.Context(), r.PathValue("guid"), req.Reaction); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleOpenChat brings a conversation to the foreground in the Messages
// app, which marks it read on this device.
func (s *Server) handleOpenChat(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.OpenChat(r.Context(), r.PathValue("guid")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	typing, err := s.actions.CheckTyping(r.Context(), r.PathValue("guid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"typing": typing})
}

func (s *Server) handleSendLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.RecentSends(queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"token":       e.Token,
			"chatGuid":    e.ChatGUID,
			"kind":        e.Kind,
			"outcome":     e.Outcome,
			"matchedGuid": e.MatchedGUID,
			"error":       e.ErrorText,
			"createdAt":   e.CreatedAt,
			"settledAt":   e.SettledAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sends": out})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
