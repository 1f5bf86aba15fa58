package eitaa

import "fmt"

// Operator notification texts. They are sent as plain admin jobs.

// SessionExpiredNotice reports that the saved login no longer works
func SessionExpiredNotice() string {
	return "⚠️ خطای دسترسی به ایتا\n\n" +
		"❌ سشن معتبر نیست\n" +
		"🔑 نیاز به لاگین مجدد"
}

// ChannelGoneNotice reports a channel missing from the chat list
func ChannelGoneNotice(channelID string) string {
	return fmt.Sprintf("⚠️ کانال %s پیدا نشد\n\nکانال غیرفعال شد.", channelID)
}

// MaxErrorsNotice is the single consolidated report sent once a channel
// fails maxErrors times in a row
func MaxErrorsNotice(channelName string, err error, maxErrors int) string {
	return "⛔️ خطای سیستمی ایتا\n\n" +
		fmt.Sprintf("📢 کانال: %s\n", channelName) +
		fmt.Sprintf("❌ %v\n\n", err) +
		fmt.Sprintf("🔢 تعداد خطا به حداکثر رسید: %d بار\n\n", maxErrors) +
		"🔍 جزئیات خطا:\n" +
		"🔹 قطع ارتباط با سرور ایتا\n" +
		"🔸 مشکل در دسترسی به کانال\n" +
		"🔹 خطای احراز هویت\n\n" +
		"⚠️ کانال غیرفعال شد\n" +
		"📋 برای راه‌اندازی مجدد با پشتیبانی تماس بگیرید"
}
