package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// MaxActiveContacts 活跃紧急联系人上限
const MaxActiveContacts = 5

var (
	// ErrContactLimit 已有 5 个活跃联系人时拒绝继续添加（确定性规则，不做隐式淘汰）
	ErrContactLimit = errors.New("emergency contact limit reached (max 5 active)")
	// ErrContactNotFound 联系人不存在
	ErrContactNotFound = errors.New("emergency contact not found")
)

// EmergencyContact 紧急联系人，priorityIndex 升序决定发送顺序
type EmergencyContact struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"size:128"`
	Phone         string    `json:"phone" gorm:"size:32"`
	Relationship  string    `json:"relationship" gorm:"size:64"`
	IsPrimary     bool      `json:"isPrimary"`
	PriorityIndex int       `json:"priorityIndex" gorm:"index"`
	Active        bool      `json:"active" gorm:"index"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// ListActiveContacts 按优先级升序返回活跃联系人，最多 5 个
func ListActiveContacts(db *gorm.DB) ([]EmergencyContact, error) {
	var contacts []EmergencyContact
	err := db.Where("active = ?", true).
		Order("priority_index asc").
		Limit(MaxActiveContacts).
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// AddContact 追加联系人到末位。超过上限返回 ErrContactLimit，调用方需先删除或停用已有联系人
func AddContact(db *gorm.DB, contact *EmergencyContact) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&EmergencyContact{}).Where("active = ?", true).Count(&count).Error; err != nil {
			return err
		}
		if count >= MaxActiveContacts {
			return ErrContactLimit
		}
		contact.Active = true
		contact.PriorityIndex = int(count)
		return tx.Create(contact).Error
	})
}

// RemoveContact 删除联系人并压实剩余的优先级序号
func RemoveContact(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&EmergencyContact{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrContactNotFound
		}
		return reindexContacts(tx)
	})
}

// ReorderContacts 按给定 ID 顺序重排优先级（拖拽排序）
func ReorderContacts(db *gorm.DB, orderedIDs []uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for idx, id := range orderedIDs {
			res := tx.Model(&EmergencyContact{}).Where("id = ?", id).Update("priority_index", idx)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrContactNotFound
			}
		}
		return nil
	})
}

func reindexContacts(tx *gorm.DB) error {
	var contacts []EmergencyContact
	if err := tx.Where("active = ?", true).Order("priority_index asc").Find(&contacts).Error; err != nil {
		return err
	}
	for idx := range contacts {
		if contacts[idx].PriorityIndex == idx {
			continue
		}
		if err := tx.Model(&EmergencyContact{}).Where("id = ?", contacts[idx].ID).
			Update("priority_index", idx).Error; err != nil {
			return err
		}
	}
	return nil
}
