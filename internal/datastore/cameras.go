// cameras.go: integration and camera persistence operations
package datastore

import (
	"time"

	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveIntegration inserts or updates an integration keyed by its unique name.
// Used at startup to sync file-seeded integrations into the database.
func (ds *DataStore) SaveIntegration(integration *Integration) error {
	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "host", "api_key", "enabled", "updated_at"}),
	}).Create(integration).Error

	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_integration").
			Context("integration_name", integration.Name).
			Build()
	}
	return nil
}

// GetIntegration retrieves an integration by its ID.
func (ds *DataStore) GetIntegration(id uint) (Integration, error) {
	var integration Integration
	if err := ds.DB.First(&integration, id).Error; err != nil {
		return Integration{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_integration").
			Context("integration_id", id).
			Build()
	}
	return integration, nil
}

// GetIntegrationByName retrieves an integration by its unique name.
func (ds *DataStore) GetIntegrationByName(name string) (Integration, error) {
	var integration Integration
	if err := ds.DB.Where("name = ?", name).First(&integration).Error; err != nil {
		return Integration{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_integration_by_name").
			Context("integration_name", name).
			Build()
	}
	return integration, nil
}

// GetIntegrations retrieves all integrations.
func (ds *DataStore) GetIntegrations() ([]Integration, error) {
	var integrations []Integration
	if err := ds.DB.Find(&integrations).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_integrations").
			Build()
	}
	return integrations, nil
}

// UpdateIntegrationStatus records the outcome of a connection test.
func (ds *DataStore) UpdateIntegrationStatus(id uint, status string) error {
	err := ds.DB.Model(&Integration{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_integration_status").
			Context("integration_id", id).
			Build()
	}
	return nil
}

// SyncCameras reconciles the camera rows of one integration against the
// device list reported by the provider. Devices no longer reported are
// soft-deleted; previously deleted devices that reappear are restored.
func (ds *DataStore) SyncCameras(integrationID uint, cameras []Camera) error {
	return ds.ScopedSession(func(tx *gorm.DB) error {
		seen := make(map[string]bool, len(cameras))

		for i := range cameras {
			cam := &cameras[i]
			cam.IntegrationID = integrationID
			seen[cam.ProviderID] = true

			var existing Camera
			err := tx.Unscoped().
				Where("integration_id = ? AND provider_id = ?", integrationID, cam.ProviderID).
				First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(cam).Error; err != nil {
					return errors.New(err).
						Component("datastore").
						Category(errors.CategoryDatabase).
						Context("operation", "sync_cameras_create").
						Context("provider_id", cam.ProviderID).
						Build()
				}
			case err != nil:
				return errors.New(err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Context("operation", "sync_cameras_lookup").
					Build()
			default:
				updates := map[string]any{
					"name":        cam.Name,
					"model":       cam.Model,
					"status":      cam.Status,
					"has_speaker": cam.HasSpeaker,
					"rtsp_url":    cam.RTSPURL,
					"deleted_at":  nil,
					"updated_at":  time.Now(),
				}
				if err := tx.Unscoped().Model(&Camera{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
					return errors.New(err).
						Component("datastore").
						Category(errors.CategoryDatabase).
						Context("operation", "sync_cameras_update").
						Context("camera_id", existing.ID).
						Build()
				}
				cam.ID = existing.ID
			}
		}

		// Soft-delete cameras the provider no longer lists
		var current []Camera
		if err := tx.Where("integration_id = ?", integrationID).Find(&current).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "sync_cameras_list").
				Build()
		}
		for i := range current {
			if !seen[current[i].ProviderID] {
				if err := tx.Delete(&current[i]).Error; err != nil {
					return errors.New(err).
						Component("datastore").
						Category(errors.CategoryDatabase).
						Context("operation", "sync_cameras_delete").
						Context("camera_id", current[i].ID).
						Build()
				}
			}
		}

		if !SafeCommit(tx) {
			return errors.Newf("camera sync commit failed for integration %d", integrationID).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "sync_cameras_commit").
				Build()
		}
		return nil
	})
}

// ActiveCameras returns enabled cameras whose owning integration is enabled
// and currently connected.
func (ds *DataStore) ActiveCameras() ([]Camera, error) {
	var cameras []Camera
	err := ds.DB.
		Joins("JOIN integrations ON integrations.id = cameras.integration_id").
		Where("integrations.enabled = ? AND integrations.status = ?", true, "connected").
		Where("cameras.enabled = ?", true).
		Find(&cameras).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "active_cameras").
			Build()
	}
	return cameras, nil
}

// GetCamera retrieves a camera by its ID.
func (ds *DataStore) GetCamera(id uint) (Camera, error) {
	var camera Camera
	if err := ds.DB.First(&camera, id).Error; err != nil {
		return Camera{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_camera").
			Context("camera_id", id).
			Build()
	}
	return camera, nil
}

// UpdateCameraStatus updates the online/offline/error status of a camera.
func (ds *DataStore) UpdateCameraStatus(id uint, status string) error {
	err := ds.DB.Model(&Camera{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_camera_status").
			Context("camera_id", id).
			Build()
	}
	return nil
}

// UpdateCameraImageHash stores the visual hash of the most recently processed
// snapshot, used by the change gate on the next tick.
func (ds *DataStore) UpdateCameraImageHash(id uint, hash string) error {
	err := ds.DB.Model(&Camera{}).Where("id = ?", id).
		Update("last_image_hash", hash).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_camera_image_hash").
			Context("camera_id", id).
			Build()
	}
	return nil
}

// categorizeGetError maps lookup failures to a NotFound or Database category.
func categorizeGetError(err error) errors.ErrorCategory {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.CategoryNotFound
	}
	return errors.CategoryDatabase
}
