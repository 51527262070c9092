package model

type DailyQuota struct {
	Date              string
	UserID            string
	UsedQuota         int
	BonusQuota        int
	BonusClaimedToday int
}

type QuotaSummary struct {
	Date      string
	Base      int
	Bonus     int
	Used      int
	Available int
	Unlimited bool
}
