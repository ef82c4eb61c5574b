package handlers

import (
	"context"
	"html"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // NOTA: En producción, validar el dominio aquí
	},
}

// ChatSession almacena el estado de cada usuario
type ChatSession struct {
	FSM          *fsm.FSM
	Handler      *ChatHandler
	CurrentGroup string
	LastInput    string
	send         func(string)
	mu           sync.Mutex
}

type ChatHandler struct {
	Schedule *ScheduleHandler
}

func NewChatHandler(schedule *ScheduleHandler) *ChatHandler {
	return &ChatHandler{Schedule: schedule}
}

func (h *ChatHandler) ShowChat(c *gin.Context) {
	c.HTML(http.StatusOK, "chat.html", nil)
}

// NewChatSession crea una nueva sesión con su máquina de estados
func NewChatSession(send func(string), handler *ChatHandler) *ChatSession {
	session := &ChatSession{
		Handler: handler,
		send:    send,
	}

	session.FSM = fsm.NewFSM(
		"idle",
		fsm.Events{
			{Name: "start", Src: []string{"idle"}, Dst: "menu"},
			{Name: "select_next", Src: []string{"menu"}, Dst: "showing_next"},
			{Name: "select_group", Src: []string{"menu"}, Dst: "awaiting_group"},
			{Name: "direct_search", Src: []string{"menu"}, Dst: "awaiting_group"},

			{Name: "provide_group", Src: []string{"awaiting_group"}, Dst: "showing_group"},
			{Name: "disambiguate", Src: []string{"awaiting_group"}, Dst: "disambiguating"},
			{Name: "select_option", Src: []string{"disambiguating"}, Dst: "showing_group"},

			// después de mostrar un horario volvemos al menú
			{Name: "done", Src: []string{"showing_next", "showing_group"}, Dst: "menu"},

			{Name: "reset", Src: []string{"awaiting_group", "disambiguating", "showing_next", "showing_group"}, Dst: "menu"},
			{Name: "help", Src: []string{"menu", "awaiting_group", "disambiguating"}, Dst: "menu"},
		},
		fsm.Callbacks{
			"enter_menu":           session.onEnterMenu,
			"enter_awaiting_group": session.onEnterAwaitingGroup,
			"enter_showing_next":   session.onEnterShowingNext,
			"enter_showing_group":  session.onEnterShowingGroup,

			"after_help": session.onHelp,
		},
	)

	return session
}

// ProcessMessage procesa el mensaje del usuario
func (s *ChatSession) ProcessMessage(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input = strings.TrimSpace(input)
	s.LastInput = input
	if input == "" {
		return
	}

	lower := strings.ToLower(input)
	currentState := s.FSM.Current()
	log.Printf("State: %s, Input: %s", currentState, input)

	ctx := context.Background()

	// Comandos globales de navegación
	switch lower {
	case "menu", "меню", "назад", "/start":
		if currentState == "idle" {
			s.FSM.Event(ctx, "start")
		} else {
			s.FSM.Event(ctx, "reset")
		}
		return
	case "help", "помощь", "/help":
		s.FSM.Event(ctx, "help")
		return
	}

	switch currentState {
	case "idle":
		s.FSM.Event(ctx, "start")
	case "menu":
		s.handleMenuInput(ctx, lower)
	case "awaiting_group", "disambiguating":
		s.handleGroupInput(ctx, input)
	}
}

func (s *ChatSession) handleMenuInput(ctx context.Context, input string) {
	switch input {
	case "1", "/next", "ближайшие":
		s.FSM.Event(ctx, "select_next")
	case "2", "группа":
		s.FSM.Event(ctx, "select_group")
	default:
		// cualquier otro texto se toma como nombre de grupo
		s.FSM.Event(ctx, "direct_search")
	}
}

func (s *ChatSession) handleGroupInput(ctx context.Context, input string) {
	group, options, err := s.Handler.Schedule.ResolveGroup(ctx, input)
	if err != nil {
		log.Println("Error:", err)
		s.sendMessage(botText("❌ Произошла ошибка при поиске группы. Попробуйте еще раз."))
		s.FSM.Event(ctx, "reset")
		return
	}

	if len(options) > 0 {
		s.showDisambiguation(options)
		if s.FSM.Current() != "disambiguating" {
			s.FSM.Event(ctx, "disambiguate")
		}
		return
	}

	if group == "" {
		s.sendMessage(botText("❌ Группа «" + input + "» не найдена."))
		s.FSM.Event(ctx, "reset")
		return
	}

	s.CurrentGroup = group
	evt := "provide_group"
	if s.FSM.Current() == "disambiguating" {
		evt = "select_option"
	}
	if err := s.FSM.Event(ctx, evt); err != nil {
		log.Printf("Error al disparar evento FSM (%s): %v, estado actual: %s", evt, err, s.FSM.Current())
		if resetErr := s.FSM.Event(context.Background(), "reset"); resetErr != nil {
			log.Printf("Error al forzar reset FSM: %v", resetErr)
		}
	}
}

// ============= Callbacks =============

func (s *ChatSession) onEnterMenu(_ context.Context, e *fsm.Event) {
	s.CurrentGroup = ""
	s.sendMenuOptions()
}

func (s *ChatSession) onEnterAwaitingGroup(ctx context.Context, e *fsm.Event) {
	if e.Event == "direct_search" {
		s.handleGroupInput(ctx, s.LastInput)
		return
	}
	s.sendMessage(botText("Введите название группы, например ИВТ-21."))
}

func (s *ChatSession) onEnterShowingNext(ctx context.Context, e *fsm.Event) {
	msg, err := s.Handler.Schedule.NextDayMessage(ctx)
	if err != nil {
		log.Printf("Error reading next day: %v", err)
	}
	s.sendMessage(botText(msg))
	s.FSM.Event(ctx, "done")
}

func (s *ChatSession) onEnterShowingGroup(ctx context.Context, e *fsm.Event) {
	msg, err := s.Handler.Schedule.GroupMessage(ctx, s.CurrentGroup)
	if err != nil {
		log.Printf("Error reading group %s: %v", s.CurrentGroup, err)
	}
	s.sendMessage(botText(msg))
	s.FSM.Event(ctx, "done")
}

func (s *ChatSession) onHelp(_ context.Context, e *fsm.Event) {
	h := `<div class="message-container bot"><div class="avatar">🤖</div><div class="message-content">`
	h += `<p><strong>💡 Помощь:</strong></p>`
	h += `<p style="margin-top: 12px; color: var(--text-secondary); line-height: 1.8;">`
	h += `• Напишите название группы, чтобы увидеть ее расписание.<br>`
	h += `• <strong>1</strong> или <strong>2</strong> для пунктов меню.<br>`
	h += `• <strong>меню</strong> чтобы вернуться в начало.<br>`
	h += `</p></div></div>`
	s.sendMessage(h)
}

// ============= Render =============

func (s *ChatSession) showDisambiguation(options []string) {
	h := `<div class="message-container bot"><div class="avatar">🤖</div><div class="message-content">`
	h += `<p>Найдено несколько групп. Какую вы ищете?</p><div style="margin-top:12px;">`
	for _, opt := range options {
		esc := html.EscapeString(opt)
		h += `<button class="option-button" data-value="` + esc + `">` + esc + `</button>`
	}
	h += `</div></div></div>`
	s.sendMessage(h)
}

func (s *ChatSession) sendMenuOptions() {
	h := `<div class="message-container bot"><div class="avatar">🤖</div>`
	h += `<div class="message-content">`
	h += `<p><strong>Что вы хотите узнать?</strong></p>`
	h += `<p style="margin-top: 16px; color: var(--text-secondary); line-height: 1.8;">`
	h += `<strong style="color: var(--text-primary);">1</strong> - Расписание на ближайший учебный день<br>`
	h += `<strong style="color: var(--text-primary);">2</strong> - Расписание группы`
	h += `</p>`
	h += `<p style="margin-top: 12px; color: var(--text-tertiary); font-size: 13px;">`
	h += `Напишите номер пункта или название группы.`
	h += `</p></div></div>`
	s.sendMessage(h)
}

func (s *ChatSession) sendMessage(h string) {
	if s.send != nil {
		s.send(h)
	}
}

// ============= WebSocket Handler =============

func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("Failed to upgrade:", err)
		return
	}
	defer conn.Close()

	send := func(msg string) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			log.Println("Write Error:", err)
		}
	}
	session := NewChatSession(send, h)

	// Disparamos el evento de inicio para mostrar el menú
	session.FSM.Event(context.Background(), "start")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Println("Read Error:", err)
			break
		}
		session.ProcessMessage(string(msg))
	}
}

// ============= Helpers =============

// botText escapa un texto plano y conserva los saltos de línea.
func botText(text string) string {
	return botMsg(strings.ReplaceAll(html.EscapeString(text), "\n", "<br>"))
}

func botMsg(text string) string {
	return `<div class="message-container bot"><div class="avatar">🤖</div><div class="message-content"><p>` + text + `</p></div></div>`
}
