package messaging

// ConversationID derives a stable conversation ID from the conversation type
// and the two parties. Peer conversations use the sorted pair so that sends in
// either direction converge on one conversation. Admin support threads are
// keyed by the non-staff party alone.
func ConversationID(convType, senderID, recipientID string) string {
	if convType == "" {
		convType = ConversationDirect
	}
	if convType == ConversationAdmin {
		if recipientID == AdminRecipient {
			return ConversationAdmin + "_" + senderID
		}
		return ConversationAdmin + "_" + recipientID
	}

	a, b := senderID, recipientID
	if b < a {
		a, b = b, a
	}
	return convType + "_" + a + "_" + b
}

// PersonalRoom returns the room every connection of a user joins.
func PersonalRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom returns the room for a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// AdminRoom is the room every admin connection joins.
const AdminRoom = "admin:room"
