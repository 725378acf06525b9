// services/users.go
package services

import (
	"errors"

	"treasure-dig-system/models"

	"gorm.io/gorm"
)

// ResolveUser maps a username onto the mirrored digger user record.
func ResolveUser(db *gorm.DB, username string) (*models.DiggerUser, error) {
	var user models.DiggerUser
	err := db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveUserByExternalID maps a gateway-provided external user id onto the
// mirror. Used by the /s/ routes where the gateway already authenticated.
func ResolveUserByExternalID(db *gorm.DB, externalID string) (*models.DiggerUser, error) {
	var user models.DiggerUser
	err := db.Where("external_user_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
