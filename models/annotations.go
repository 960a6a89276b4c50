package models

// Box Integer pixel coordinates of a bounding box
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type Annotation struct {
	ID         uint    `json:"-" gorm:"primaryKey"`
	ImageID    uint    `json:"-" gorm:"index;not null"`
	Label      string  `json:"label" gorm:"not null"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box" gorm:"embedded"`
}

func (Annotation) TableName() string {
	return "annotations"
}
