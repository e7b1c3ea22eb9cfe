package datastore

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock over Interface, shared by the packages that
// exercise the datastore in tests.
type MockStore struct {
	mock.Mock
}

var _ Interface = (*MockStore)(nil)

func (m *MockStore) Open() error {
	return m.Called().Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockStore) SaveIntegration(integration *Integration) error {
	return m.Called(integration).Error(0)
}

func (m *MockStore) GetIntegration(id uint) (Integration, error) {
	args := m.Called(id)
	return args.Get(0).(Integration), args.Error(1)
}

func (m *MockStore) GetIntegrationByName(name string) (Integration, error) {
	args := m.Called(name)
	return args.Get(0).(Integration), args.Error(1)
}

func (m *MockStore) GetIntegrations() ([]Integration, error) {
	args := m.Called()
	integrations, _ := args.Get(0).([]Integration)
	return integrations, args.Error(1)
}

func (m *MockStore) UpdateIntegrationStatus(id uint, status string) error {
	return m.Called(id, status).Error(0)
}

func (m *MockStore) SyncCameras(integrationID uint, cameras []Camera) error {
	return m.Called(integrationID, cameras).Error(0)
}

func (m *MockStore) ActiveCameras() ([]Camera, error) {
	args := m.Called()
	cameras, _ := args.Get(0).([]Camera)
	return cameras, args.Error(1)
}

func (m *MockStore) GetCamera(id uint) (Camera, error) {
	args := m.Called(id)
	return args.Get(0).(Camera), args.Error(1)
}

func (m *MockStore) UpdateCameraStatus(id uint, status string) error {
	return m.Called(id, status).Error(0)
}

func (m *MockStore) UpdateCameraImageHash(id uint, hash string) error {
	return m.Called(id, hash).Error(0)
}

func (m *MockStore) SaveDetection(detection *Detection, foes []Foe) error {
	return m.Called(detection, foes).Error(0)
}

func (m *MockStore) GetDetection(id uint) (Detection, error) {
	args := m.Called(id)
	return args.Get(0).(Detection), args.Error(1)
}

func (m *MockStore) UpdateDetection(id uint, fields map[string]any) error {
	return m.Called(id, fields).Error(0)
}

func (m *MockStore) GetDetectionFoes(detectionID uint) ([]Foe, error) {
	args := m.Called(detectionID)
	foes, _ := args.Get(0).([]Foe)
	return foes, args.Error(1)
}

func (m *MockStore) GetRecentDetections(limit int) ([]Detection, error) {
	args := m.Called(limit)
	detections, _ := args.Get(0).([]Detection)
	return detections, args.Error(1)
}

func (m *MockStore) GetDetectionsByCamera(cameraID uint, limit int) ([]Detection, error) {
	args := m.Called(cameraID, limit)
	detections, _ := args.Get(0).([]Detection)
	return detections, args.Error(1)
}

func (m *MockStore) CountDetectionsByStatus() (map[string]int64, error) {
	args := m.Called()
	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}

func (m *MockStore) CountFoesByKind() (map[string]int64, error) {
	args := m.Called()
	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}

func (m *MockStore) SaveDeterrentAction(action *DeterrentAction) error {
	return m.Called(action).Error(0)
}

func (m *MockStore) RecordSoundEffectiveness(record *SoundEffectiveness, hour int) error {
	return m.Called(record, hour).Error(0)
}

func (m *MockStore) GetSoundStatistics(pestKind string) ([]SoundStatistics, error) {
	args := m.Called(pestKind)
	stats, _ := args.Get(0).([]SoundStatistics)
	return stats, args.Error(1)
}

func (m *MockStore) GetSoundStatisticsFor(pestKind, soundFile string) (SoundStatistics, error) {
	args := m.Called(pestKind, soundFile)
	return args.Get(0).(SoundStatistics), args.Error(1)
}

func (m *MockStore) GetTimeBasedEffectiveness(pestKind string, hour int) (TimeBasedEffectiveness, error) {
	args := m.Called(pestKind, hour)
	return args.Get(0).(TimeBasedEffectiveness), args.Error(1)
}

func (m *MockStore) GetTimePatterns(pestKind string) ([]TimeBasedEffectiveness, error) {
	args := m.Called(pestKind)
	patterns, _ := args.Get(0).([]TimeBasedEffectiveness)
	return patterns, args.Error(1)
}

func (m *MockStore) GetEffectivenessHistory(pestKind, soundFile string, limit int) ([]SoundEffectiveness, error) {
	args := m.Called(pestKind, soundFile, limit)
	history, _ := args.Get(0).([]SoundEffectiveness)
	return history, args.Error(1)
}

func (m *MockStore) GetEffectivenessSummary() ([]EffectivenessSummary, error) {
	args := m.Called()
	summaries, _ := args.Get(0).([]EffectivenessSummary)
	return summaries, args.Error(1)
}

func (m *MockStore) GetMediaQualifyingForRemoval(cutoff time.Time) ([]MediaForRemoval, error) {
	args := m.Called(cutoff)
	media, _ := args.Get(0).([]MediaForRemoval)
	return media, args.Error(1)
}

func (m *MockStore) ClearMediaPaths(ids []uint) error {
	return m.Called(ids).Error(0)
}

func (m *MockStore) GetSetting(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) SetSetting(key, value string) error {
	return m.Called(key, value).Error(0)
}
