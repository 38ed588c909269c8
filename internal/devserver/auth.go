package devserver

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

const userKey = "devserver.user"

type account struct {
	user     models.SafeUser
	password string
	token    string
}

// Directory 静态用户表与医患关联，来自配置
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]account
	byToken map[string]string
	byEmail map[string]string
	links   []models.DoctorLink
}

func NewDirectory(users []config.DevUser, links []config.DevLink) *Directory {
	d := &Directory{
		byID:    make(map[string]account),
		byToken: make(map[string]string),
		byEmail: make(map[string]string),
	}
	for _, u := range users {
		role, ok := models.ParseRole(u.Role)
		if !ok || u.ID == "" {
			continue
		}
		d.byID[u.ID] = account{
			user:     models.SafeUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: role},
			password: u.Password,
			token:    u.Token,
		}
		if u.Token != "" {
			d.byToken[u.Token] = u.ID
		}
		if u.Email != "" {
			d.byEmail[strings.ToLower(u.Email)] = u.ID
		}
	}
	for _, l := range links {
		link := models.DoctorLink{
			LinkID:    "link-" + l.DoctorID + "-" + l.PatientID,
			DoctorID:  l.DoctorID,
			PatientID: l.PatientID,
			IsActive:  l.IsActive,
		}
		if l.Specialty != "" {
			specialty := l.Specialty
			link.Specialty = &specialty
		}
		if doc, ok := d.byID[l.DoctorID]; ok {
			u := doc.user
			link.Doctor = &u
		}
		if pat, ok := d.byID[l.PatientID]; ok {
			u := pat.user
			link.Patient = &u
		}
		d.links = append(d.links, link)
	}
	return d
}

func (d *Directory) User(id string) (models.SafeUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[id]
	return a.user, ok
}

func (d *Directory) ByToken(token string) (models.SafeUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byToken[token]
	if !ok {
		return models.SafeUser{}, false
	}
	return d.byID[id].user, true
}

// Login 校验邮箱密码并返回令牌
func (d *Directory) Login(email, password string) (string, models.SafeUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", models.SafeUser{}, false
	}
	a := d.byID[id]
	if a.password != password || a.token == "" {
		return "", models.SafeUser{}, false
	}
	return a.token, a.user, true
}

// LinksForPatient 患者的医生关联
func (d *Directory) LinksForPatient(patientID string) []models.DoctorLink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.DoctorLink, 0)
	for _, l := range d.links {
		if l.PatientID == patientID {
			out = append(out, l)
		}
	}
	return out
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// authRequired 校验 Bearer 令牌并把用户放入上下文
func (d *Directory) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := d.ByToken(bearerToken(c.Request))
		if !ok {
			fail(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) models.SafeUser {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(models.SafeUser); ok {
			return u
		}
	}
	return models.SafeUser{}
}
