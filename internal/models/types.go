package models

import "gorm.io/datatypes"

// JSONMap is stored as a JSON text column.
type JSONMap = datatypes.JSONMap
