package models

// ContactType 跟进联系方式
type ContactType string

const (
	ContactTypeCall    ContactType = "Llamada"            // 电话
	ContactTypeEmail   ContactType = "Correo"             // 邮件
	ContactTypeMeeting ContactType = "Reunión presencial" // 面谈
)

// ContactTypes 全部联系方式
var ContactTypes = []ContactType{ContactTypeCall, ContactTypeEmail, ContactTypeMeeting}

// IsValid 是否为已知联系方式
func (t ContactType) IsValid() bool {
	for _, ct := range ContactTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// FollowUpActivity 跟进活动，clientContact 是创建时的联系人快照，不随客户联系人变化
type FollowUpActivity struct {
	ID              ID          `json:"id" bson:"id"`
	ContactType     ContactType `json:"contactType" bson:"contactType" validate:"required,contacttype"`
	ContactDate     string      `json:"contactDate" bson:"contactDate" validate:"required,isodate"`
	ClientContact   Contact     `json:"clientContact" bson:"clientContact"`
	SalesExecutive  string      `json:"salesExecutive" bson:"salesExecutive" validate:"required"`
	Description     string      `json:"description" bson:"description" validate:"required"`
	AdditionalNotes string      `json:"additionalNotes,omitempty" bson:"additionalNotes,omitempty"`
}

// FollowUp 商机跟进记录
type FollowUp struct {
	ID                 ID                 `json:"id,omitempty" bson:"id,omitempty"`
	OpportunityID      ID                 `json:"opportunityId" bson:"opportunityId"`
	FollowUpActivities []FollowUpActivity `json:"followUpActivities" bson:"followUpActivities"`
}

// Clone 深拷贝
func (f FollowUp) Clone() FollowUp {
	out := f
	if f.FollowUpActivities != nil {
		out.FollowUpActivities = append([]FollowUpActivity(nil), f.FollowUpActivities...)
	}
	return out
}

// FindActivity 按ID查找活动
func (f FollowUp) FindActivity(activityID ID) (FollowUpActivity, int, bool) {
	for i, a := range f.FollowUpActivities {
		if a.ID == activityID {
			return a, i, true
		}
	}
	return FollowUpActivity{}, -1, false
}

// FollowUpID 返回跟进记录ID
func FollowUpID(f FollowUp) ID { return f.ID }
