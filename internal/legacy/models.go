package legacy

type Province struct {
	ProvinceID   string `gorm:"column:province_id;primaryKey" json:"province_id"`
	ProvinceName string `gorm:"column:province_name" json:"province_name"`
	ProvinceType string `gorm:"column:province_type" json:"province_type"`
}

func (Province) TableName() string { return "vnappmob_list_province" }

type District struct {
	DistrictID   string `gorm:"column:district_id;primaryKey" json:"district_id"`
	DistrictName string `gorm:"column:district_name" json:"district_name"`
	DistrictType string `gorm:"column:district_type" json:"district_type"`
	ProvinceID   string `gorm:"column:province_id;index" json:"province_id"`
}

func (District) TableName() string { return "vnappmob_list_district" }

type Ward struct {
	WardID     string `gorm:"column:ward_id;primaryKey" json:"ward_id"`
	WardName   string `gorm:"column:ward_name" json:"ward_name"`
	WardType   string `gorm:"column:ward_type" json:"ward_type"`
	DistrictID string `gorm:"column:district_id;index" json:"district_id"`
}

func (Ward) TableName() string { return "vnappmob_list_ward" }

// Setting is one key/value row of the legacy settings table.
type Setting struct {
	Key   string `gorm:"column:setting_key;primaryKey"`
	Value string `gorm:"column:setting_value"`
}

func (Setting) TableName() string { return "vnappmob_slash_setting" }

// Business is a registry entry keyed by its tax code.
type Business struct {
	Code         string `gorm:"column:vbiz_code;primaryKey" json:"vbiz_code"`
	Name         string `gorm:"column:vbiz_name" json:"vbiz_name"`
	Address      string `gorm:"column:vbiz_address" json:"vbiz_address"`
	Phone        string `gorm:"column:vbiz_phone" json:"vbiz_phone"`
	Email        string `gorm:"column:vbiz_email" json:"vbiz_email"`
	Website      string `gorm:"column:vbiz_website" json:"vbiz_website"`
	CategoryID   string `gorm:"column:vbiz_category_id" json:"vbiz_category_id"`
	RegisterDate string `gorm:"column:vbiz_register_date" json:"vbiz_register_date"`
}

func (Business) TableName() string { return "vbiz" }

// BusinessSummary is the search result shape.
type BusinessSummary struct {
	Code string `gorm:"column:vbiz_code" json:"vbiz_code"`
	Name string `gorm:"column:vbiz_name" json:"vbiz_name"`
}
