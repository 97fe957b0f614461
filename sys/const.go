package sys

// Marketplace contract methods.
const (
	MethodCourseCount       = "getCourseCount"
	MethodCourse            = "getCourse"
	MethodCourseModules     = "getCourseModules"
	MethodModule            = "getModule"
	MethodModuleLessons     = "getModuleLessons"
	MethodLesson            = "getLesson"
	MethodInstructorCourses = "getInstructorCourses"
	MethodEnrolledCourses   = "getEnrolledCourses"
	MethodCompletedCourses  = "getCompletedCourses"
	MethodEnrollment        = "getEnrollment"
	MethodProgress          = "getProgress"
	MethodCompletedLessons  = "getCompletedLessons"
	MethodCurrentQuiz       = "getCurrentQuiz"
	MethodQuiz              = "getQuiz"
	MethodQuizQuestions     = "getQuizQuestions"
	MethodQuestion          = "getQuestion"
	MethodCertificates      = "getCertificates"
	MethodCertificate       = "getCertificate"
	MethodAchievements      = "getAchievements"
	MethodAchievement       = "getAchievement"
	MethodHasAchievement    = "hasAchievement"
	MethodInstructorReviews = "getInstructorReviews"
	MethodReview            = "getReview"
	MethodCreateCourse      = "createCourse"
	MethodUpdateCourse      = "updateCourse"
	MethodSetCoursePaused   = "setCoursePaused"
	MethodAddModule         = "addModule"
	MethodAddLesson         = "addLesson"
	MethodEnroll            = "enroll"
	MethodBatchEnroll       = "batchEnroll"
	MethodFundRewardPool    = "fundRewardPool"
	MethodCompleteLesson    = "completeLesson"
	MethodUpdateProgress    = "updateProgress"
	MethodGenerateQuiz      = "generateQuiz"
	MethodSubmitQuiz        = "submitQuiz"
	MethodClaimCertificate  = "claimCertificate"
	MethodRevokeCertificate = "revokeCertificate"
	MethodSubmitReview      = "submitReview"
	MethodClaimAchievement  = "claimAchievement"
)

// Reward token contract methods.
const (
	MethodBalanceOf = "balanceOf"
	MethodAllowance = "allowance"
	MethodApprove   = "approve"
)

// Events emitted by confirmed transactions.
const (
	EventApproval           = "Approval"
	EventCourseCreated      = "CourseCreated"
	EventCourseUpdated      = "CourseUpdated"
	EventCourseStatus       = "CourseStatusChanged"
	EventModuleAdded        = "ModuleAdded"
	EventLessonAdded        = "LessonAdded"
	EventEnrolled           = "Enrolled"
	EventRewardPoolFunded   = "RewardPoolFunded"
	EventLessonCompleted    = "LessonCompleted"
	EventProgressUpdated    = "ProgressUpdated"
	EventQuizRequested      = "QuizRequested"
	EventQuizSubmitted      = "QuizSubmitted"
	EventCertificateIssued  = "CertificateIssued"
	EventCertificateRevoked = "CertificateRevoked"
	EventReviewSubmitted    = "ReviewSubmitted"
	EventAchievementEarned  = "AchievementEarned"
)

// Lesson content types.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentVideo    = "video"
	ContentAudio    = "audio"
	ContentDocument = "document"
)

var ContentTypes = map[string]struct{}{
	ContentText:     {},
	ContentImage:    {},
	ContentVideo:    {},
	ContentAudio:    {},
	ContentDocument: {},
}

const (
	// MaxProgress is the progress percentage of a completed course.
	MaxProgress = 100

	// PassingScore is the minimum quiz score, in percent, that completes a course.
	PassingScore = 60

	MinRating = 1
	MaxRating = 5

	MaxReviewCommentLen = 1024
	MaxTitleLen         = 256
)
