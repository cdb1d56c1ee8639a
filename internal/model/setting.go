package model

import "time"

// Setting keys persisted in the school_settings table.
const (
	SettingSchoolName        = "school_name"
	SettingSchoolAddress     = "school_address"
	SettingSchoolTerm        = "school_term"
	SettingSchoolLogo        = "school_logo"
	SettingAdminName         = "admin_name"
	SettingAdminUsername     = "admin_username"
	SettingAdminPasswordHash = "admin_password_hash"
)

// AppSetting represents a key-value pair for school-wide configuration.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SchoolData is the school identity plus the administrator credentials.
type SchoolData struct {
	Name              string `json:"name"`
	Address           string `json:"address"`
	Term              string `json:"term"`
	AdminName         string `json:"adminName"`
	AdminUsername     string `json:"adminUsername"`
	AdminPasswordHash string `json:"-"`
	Logo              string `json:"logo"`
}

// SchoolDataFromSettings maps settings rows onto SchoolData.
func SchoolDataFromSettings(settings map[string]string) SchoolData {
	return SchoolData{
		Name:              settings[SettingSchoolName],
		Address:           settings[SettingSchoolAddress],
		Term:              settings[SettingSchoolTerm],
		AdminName:         settings[SettingAdminName],
		AdminUsername:     settings[SettingAdminUsername],
		AdminPasswordHash: settings[SettingAdminPasswordHash],
		Logo:              settings[SettingSchoolLogo],
	}
}

// Public strips the administrator login from the school data shown to students.
func (d SchoolData) Public() SchoolData {
	d.AdminUsername = ""
	d.AdminPasswordHash = ""
	return d
}

// AdminLoginRequest is the payload for administrator authentication.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,notblank,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// AdminLoginResponse is returned after successful admin login.
type AdminLoginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}
