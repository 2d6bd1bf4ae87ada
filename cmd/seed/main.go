package main

import (
	"codepair/internal/app"
	"codepair/internal/config"
	"codepair/internal/model"
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var catalog = []*model.CatalogProblem{
	{
		Title:      "Two Sum",
		Difficulty: model.DifficultyEasy,
		StarterCode: map[string]string{
			model.LangJavaScript: "function twoSum(nums, target) {\n  // Write your solution here\n}\n\nconsole.log(twoSum([2, 7, 11, 15], 9)); // [0, 1]\n",
			model.LangPython:     "def twoSum(nums, target):\n    # Write your solution here\n    pass\n\nprint(twoSum([2, 7, 11, 15], 9))  # [0, 1]\n",
			model.LangJava:       "import java.util.*;\n\nclass Solution {\n    public static int[] twoSum(int[] nums, int target) {\n        // Write your solution here\n        return new int[0];\n    }\n\n    public static void main(String[] args) {\n        System.out.println(Arrays.toString(twoSum(new int[]{2, 7, 11, 15}, 9)));\n    }\n}\n",
		},
	},
	{
		Title:      "Reverse String",
		Difficulty: model.DifficultyEasy,
		StarterCode: map[string]string{
			model.LangJavaScript: "function reverseString(s) {\n  // Write your solution here\n}\n\nconst s = [\"h\",\"e\",\"l\",\"l\",\"o\"];\nreverseString(s);\nconsole.log(s);\n",
			model.LangPython:     "def reverseString(s):\n    # Write your solution here\n    pass\n\ns = [\"h\",\"e\",\"l\",\"l\",\"o\"]\nreverseString(s)\nprint(s)\n",
			model.LangJava:       "import java.util.*;\n\nclass Solution {\n    public static void reverseString(char[] s) {\n        // Write your solution here\n    }\n\n    public static void main(String[] args) {\n        char[] s = {'h','e','l','l','o'};\n        reverseString(s);\n        System.out.println(Arrays.toString(s));\n    }\n}\n",
		},
	},
	{
		Title:      "Valid Palindrome",
		Difficulty: model.DifficultyEasy,
		StarterCode: map[string]string{
			model.LangJavaScript: "function isPalindrome(s) {\n  // Write your solution here\n}\n\nconsole.log(isPalindrome(\"A man, a plan, a canal: Panama\")); // true\n",
			model.LangPython:     "def isPalindrome(s):\n    # Write your solution here\n    pass\n\nprint(isPalindrome(\"A man, a plan, a canal: Panama\"))  # True\n",
			model.LangJava:       "class Solution {\n    public static boolean isPalindrome(String s) {\n        // Write your solution here\n        return false;\n    }\n\n    public static void main(String[] args) {\n        System.out.println(isPalindrome(\"A man, a plan, a canal: Panama\"));\n    }\n}\n",
		},
	},
	{
		Title:      "Maximum Subarray",
		Difficulty: model.DifficultyMedium,
		StarterCode: map[string]string{
			model.LangJavaScript: "function maxSubArray(nums) {\n  // Write your solution here\n}\n\nconsole.log(maxSubArray([-2,1,-3,4,-1,2,1,-5,4])); // 6\n",
			model.LangPython:     "def maxSubArray(nums):\n    # Write your solution here\n    pass\n\nprint(maxSubArray([-2,1,-3,4,-1,2,1,-5,4]))  # 6\n",
			model.LangJava:       "class Solution {\n    public static int maxSubArray(int[] nums) {\n        // Write your solution here\n        return 0;\n    }\n\n    public static void main(String[] args) {\n        System.out.println(maxSubArray(new int[]{-2,1,-3,4,-1,2,1,-5,4}));\n    }\n}\n",
		},
	},
	{
		Title:      "LRU Cache",
		Difficulty: model.DifficultyMedium,
		StarterCode: map[string]string{
			model.LangJavaScript: "class LRUCache {\n  constructor(capacity) {\n    // Write your solution here\n  }\n\n  get(key) {}\n\n  put(key, value) {}\n}\n",
			model.LangPython:     "class LRUCache:\n    def __init__(self, capacity):\n        # Write your solution here\n        pass\n\n    def get(self, key):\n        pass\n\n    def put(self, key, value):\n        pass\n",
			model.LangJava:       "class LRUCache {\n    public LRUCache(int capacity) {\n        // Write your solution here\n    }\n\n    public int get(int key) {\n        return -1;\n    }\n\n    public void put(int key, int value) {\n    }\n}\n",
		},
	},
	{
		Title:      "Median of Two Sorted Arrays",
		Difficulty: model.DifficultyHard,
		StarterCode: map[string]string{
			model.LangJavaScript: "function findMedianSortedArrays(nums1, nums2) {\n  // Write your solution here\n}\n\nconsole.log(findMedianSortedArrays([1, 3], [2])); // 2\n",
			model.LangPython:     "def findMedianSortedArrays(nums1, nums2):\n    # Write your solution here\n    pass\n\nprint(findMedianSortedArrays([1, 3], [2]))  # 2.0\n",
			model.LangJava:       "class Solution {\n    public static double findMedianSortedArrays(int[] nums1, int[] nums2) {\n        // Write your solution here\n        return 0;\n    }\n\n    public static void main(String[] args) {\n        System.out.println(findMedianSortedArrays(new int[]{1, 3}, new int[]{2}));\n    }\n}\n",
		},
	},
}

func main() {
	printTokens := flag.Bool("tokens", false, "print development identity tokens for a host and a candidate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB)
	a := app.New(cfg, db, nil)

	if err := app.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	for _, p := range catalog {
		if err := a.ProblemRepo.Upsert(ctx, p); err != nil {
			log.Fatalf("Failed to upsert problem %q: %v", p.Title, err)
		}
	}
	fmt.Printf("Successfully seeded %d catalog problems into '%s'\n", len(catalog), cfg.MongoDB)

	if !*printTokens {
		return
	}
	for _, u := range []struct{ id, name, email string }{
		{"dev-host", "Dev Host", "host@example.com"},
		{"dev-candidate", "Dev Candidate", "candidate@example.com"},
	} {
		token, err := a.Auth.IssueToken(u.id, u.name, u.email, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("%s: %s\n", u.name, token)
	}
}
